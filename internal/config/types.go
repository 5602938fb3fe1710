// Package config provides configuration loading for dnsrouter using
// Viper. Configuration is loaded from a YAML file with automatic
// environment variable binding.
//
// Environment variables use the DNSROUTER_ prefix and underscore-separated
// keys:
//   - DNSROUTER_SERVER_HOST -> server.host
//   - DNSROUTER_SERVER_PORT -> server.port
//   - DNSROUTER_CACHE_MAX_ENTRIES -> cache.max_entries
package config

// ServerConfig contains front-end listener settings.
type ServerConfig struct {
	Host        string `yaml:"host"         mapstructure:"host"`
	Port        int    `yaml:"port"         mapstructure:"port"`
	EnableTCP   bool   `yaml:"enable_tcp"   mapstructure:"enable_tcp"`
	TCPFallback bool   `yaml:"tcp_fallback" mapstructure:"tcp_fallback"`
}

// UpstreamEntry describes one upstream resolver bound to a tag the
// rule table's Query actions reference. A tag may bind more than one
// server, dispatched according to Dispatch ("round_robin" or "hedge");
// this is how multiple IPs behind one logical upstream are expressed.
type UpstreamEntry struct {
	Tag        string   `yaml:"tag"         mapstructure:"tag"`
	Protocol   string   `yaml:"protocol"    mapstructure:"protocol"` // "udp" or "doh"
	Servers    []string `yaml:"servers"     mapstructure:"servers"`
	Dispatch   string   `yaml:"dispatch"    mapstructure:"dispatch"` // "round_robin" (default) or "hedge"
	MaxRetries int      `yaml:"max_retries" mapstructure:"max_retries"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// LoggingConfig contains logging settings; shape and defaults follow
// the teacher's logging.Config directly.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// AdminAPIConfig contains the admin HTTP surface's settings.
type AdminAPIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
}

// HealthStoreConfig points at the durable upstream-health ledger.
type HealthStoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RuleFileConfig points at the YAML file describing the rule graph
// (the Table: Start tag plus named SeqBlock/IfBlock rules). Parsing
// that file's shape into a ruletable.Table is a loader concern handled
// in rules.go (LoadRuleTable), not part of this package's config struct.
type RuleFileConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig      `yaml:"server"      mapstructure:"server"`
	Upstreams  []UpstreamEntry   `yaml:"upstreams"   mapstructure:"upstreams"`
	Cache      CacheConfig       `yaml:"cache"       mapstructure:"cache"`
	Logging    LoggingConfig     `yaml:"logging"     mapstructure:"logging"`
	AdminAPI   AdminAPIConfig    `yaml:"admin_api"   mapstructure:"admin_api"`
	HealthStore HealthStoreConfig `yaml:"health_store" mapstructure:"health_store"`
	Rules      RuleFileConfig    `yaml:"rules"       mapstructure:"rules"`
}
