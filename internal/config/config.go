// Package config provides configuration loading and validation for
// dnsrouter.
//
// Configuration is loaded with the following priority (highest to
// lowest):
//  1. Environment variables (DNSROUTER_* prefix)
//  2. YAML config file (if specified)
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ResolveConfigPath determines the config file path from a flag or
// environment variable.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return strings.TrimSpace(os.Getenv("DNSROUTER_CONFIG"))
}

// Load loads configuration from a YAML file with environment variable
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DNSROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 1053)
	v.SetDefault("server.enable_tcp", true)
	v.SetDefault("server.tcp_fallback", true)

	v.SetDefault("upstreams", []UpstreamEntry{
		{Tag: "default", Protocol: "udp", Servers: []string{"8.8.8.8:53"}, Dispatch: "round_robin", MaxRetries: 3},
	})

	v.SetDefault("cache.max_entries", 20000)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	v.SetDefault("admin_api.enabled", false)
	v.SetDefault("admin_api.host", "127.0.0.1")
	v.SetDefault("admin_api.port", 8080)

	v.SetDefault("health_store.path", "dnsrouter-health.db")

	v.SetDefault("rules.path", "rules.yaml")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if len(cfg.Upstreams) == 0 {
		return fmt.Errorf("at least one upstream must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		if u.Tag == "" {
			return fmt.Errorf("upstream entry missing tag")
		}
		if _, dup := seen[u.Tag]; dup {
			return fmt.Errorf("duplicate upstream tag %q", u.Tag)
		}
		seen[u.Tag] = struct{}{}
		switch u.Protocol {
		case "udp", "doh":
		default:
			return fmt.Errorf("upstream %q: unsupported protocol %q", u.Tag, u.Protocol)
		}
		if len(u.Servers) == 0 {
			return fmt.Errorf("upstream %q: at least one server required", u.Tag)
		}
		switch u.Dispatch {
		case "", "round_robin", "hedge":
		default:
			return fmt.Errorf("upstream %q: unsupported dispatch mode %q", u.Tag, u.Dispatch)
		}
	}
	if cfg.Rules.Path == "" {
		return fmt.Errorf("rules.path must be set")
	}
	return nil
}
