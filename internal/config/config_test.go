package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither set", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DNSROUTER_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1053, cfg.Server.Port)
	assert.Len(t, cfg.Upstreams, 1)
	assert.Equal(t, "default", cfg.Upstreams[0].Tag)
	assert.Equal(t, 20000, cfg.Cache.MaxEntries)
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
server:
  host: 127.0.0.1
  port: 5300
upstreams:
  - tag: primary
    protocol: udp
    servers: ["1.1.1.1:53", "1.0.0.1:53"]
    dispatch: hedge
  - tag: secondary
    protocol: doh
    servers: ["https://dns.example/dns-query"]
cache:
  max_entries: 500
rules:
  path: my-rules.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5300, cfg.Server.Port)
	assert.Len(t, cfg.Upstreams, 2)
	assert.Equal(t, "secondary", cfg.Upstreams[1].Tag)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, "my-rules.yaml", cfg.Rules.Path)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateUpstreamTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
upstreams:
  - tag: a
    protocol: udp
    servers: ["1.1.1.1:53"]
  - tag: a
    protocol: udp
    servers: ["8.8.8.8:53"]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
