package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dexcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, "en", cfg.Upstream.TargetLanguage)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_TRANSLATE_KEY", "secret-123")

	path := writeConfig(t, `
listen: ":9090"
db_path: "test.db"
cache:
  capacity: 50
  ttl: 30m
upstream:
  timeout: 2s
  target_language: fr
species:
  url: http://species.local
dialect:
  providers:
    - name: primary
      url: http://translate.local
      api_key: ${TEST_TRANSLATE_KEY}
      requests_per_hour: 60
      burst: 2
  routes:
    - dialect: yoda
      targets:
        - provider: primary
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "fr", cfg.Upstream.TargetLanguage)
	require.Len(t, cfg.Dialect.Providers, 1)
	assert.Equal(t, "secret-123", cfg.Dialect.Providers[0].APIKey, "env var not expanded")
	assert.Equal(t, 60.0, cfg.Dialect.Providers[0].RequestsPerHour)
	require.Len(t, cfg.Dialect.Routes, 1)
	assert.Equal(t, "yoda", cfg.Dialect.Routes[0].Dialect)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEXCACHE_LISTEN", ":7070")
	t.Setenv("DEXCACHE_CACHE_TTL", "90s")
	t.Setenv("DEXCACHE_UPSTREAM_TARGET_LANGUAGE", "de")
	t.Setenv("DEXCACHE_HISTORY_ENABLED", "false")

	path := writeConfig(t, `
listen: ":9090"
cache:
  ttl: 30m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "de", cfg.Upstream.TargetLanguage)
	assert.False(t, cfg.History.Enabled)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Species.URL, cfg.Species.URL)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/dexcache.yaml")
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfig(t, `
cache:
  capacity: -1
upstream:
  target_language: ""
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.capacity")
	assert.Contains(t, err.Error(), "target_language")
}

func TestValidateRouteDialects(t *testing.T) {
	tests := []struct {
		name    string
		route   RouteConfig
		wantErr string
	}{
		{"yoda", RouteConfig{Dialect: "yoda", Targets: []RouteTarget{{Provider: "funtranslations"}}}, ""},
		{"shakespeare", RouteConfig{Dialect: "shakespeare", Targets: []RouteTarget{{Provider: "funtranslations"}}}, ""},
		{"unknown", RouteConfig{Dialect: "klingon", Targets: []RouteTarget{{Provider: "funtranslations"}}}, `unknown dialect "klingon"`},
		{"none", RouteConfig{Dialect: "none", Targets: []RouteTarget{{Provider: "funtranslations"}}}, `unknown dialect "none"`},
		{"no targets", RouteConfig{Dialect: "yoda"}, "at least one target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Dialect.Routes = []RouteConfig{tt.route}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
