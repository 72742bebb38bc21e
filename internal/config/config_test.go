package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30, cfg.Ingest.DaysBack)
	assert.Equal(t, 30, cfg.Ingest.UnmatchedLookbackDays)
	assert.Equal(t, 4, cfg.Ingest.HistoricalWeeks)
	assert.Equal(t, "https://server.smartlead.ai/api/v1", cfg.SmartLead.BaseURL)
	assert.Equal(t, 10, cfg.SmartLead.MaxWorkers)
	assert.Equal(t, 100, cfg.SmartLead.PageSize)
	assert.Equal(t, 30, cfg.SmartLead.RequestTimeoutSecs)
	assert.Equal(t, 600, cfg.SmartLead.TaskTimeoutSecs)
	assert.Equal(t, 3, cfg.SmartLead.MaxRetries)
	assert.InDelta(t, 10.0, cfg.SmartLead.RatePerSec, 0.001)
	assert.Equal(t, 1800, cfg.Lock.TTLSecs)
	assert.Equal(t, "client_health", cfg.Metrics.Job)
	assert.Equal(t, 26, cfg.Monitoring.StaleAfterHours)
	assert.InDelta(t, 0.2, cfg.Monitoring.LeadFailureThreshold, 0.001)
	assert.Empty(t, cfg.SmartLead.APIKey)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:health.db
log:
  level: debug
  format: console
server:
  port: 9090
  allowed_origins: ["https://dash.example.com"]
smartlead:
  max_workers: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:health.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.SmartLead.MaxWorkers)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.SmartLead.PageSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0644))
	t.Setenv("CLIENT_HEALTH_LOG_LEVEL", "warn")
	t.Setenv("CLIENT_HEALTH_SMARTLEAD_API_KEY", "sl-key")
	t.Setenv("CLIENT_HEALTH_SOURCES_CLIENTS_URL", "postgres://ro@clients/db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sl-key", cfg.SmartLead.APIKey)
	assert.Equal(t, "postgres://ro@clients/db", cfg.Sources.ClientsURL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLIENT_HEALTH_LOCK_REDIS_URL=redis://localhost:6379/0\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CLIENT_HEALTH_LOCK_REDIS_URL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Lock.RedisURL)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.log")
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1}))

	zap.L().Info("rotated sink check")
	_ = zap.L().Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "rotated sink check")
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	return &Config{
		Sources:   SourcesConfig{ClientsURL: "postgres://ro@a/db", ReportingURL: "postgres://ro@b/db"},
		Store:     StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/health"},
		Ingest:    IngestConfig{DaysBack: 30, HistoricalWeeks: 4},
		SmartLead: SmartLeadConfig{APIKey: "key", MaxWorkers: 10, PageSize: 100},
		Server:    ServerConfig{Port: 8080},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "run ok", mode: "run"},
		{name: "quick needs no api key", mode: "quick", mutate: func(c *Config) { c.SmartLead.APIKey = "" }},
		{name: "run needs api key", mode: "run", mutate: func(c *Config) { c.SmartLead.APIKey = "" }, wantErr: "smartlead.api_key is required"},
		{name: "run needs sources", mode: "run", mutate: func(c *Config) { c.Sources = SourcesConfig{} }, wantErr: "sources.clients_url is required; sources.reporting_url is required"},
		{name: "days back", mode: "quick", mutate: func(c *Config) { c.Ingest.DaysBack = 0 }, wantErr: "ingest.days_back must be > 0"},
		{name: "historical weeks", mode: "run", mutate: func(c *Config) { c.Ingest.HistoricalWeeks = 5 }, wantErr: "historical_weeks must be between 0 and 4"},
		{name: "not-contacted workers", mode: "not-contacted", mutate: func(c *Config) { c.SmartLead.MaxWorkers = 0 }, wantErr: "max_workers must be between 1 and 50"},
		{name: "not-contacted ignores sources", mode: "not-contacted", mutate: func(c *Config) { c.Sources = SourcesConfig{} }},
		{name: "serve port", mode: "serve", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port must be > 0"},
		{name: "export store", mode: "export", mutate: func(c *Config) { c.Store.DatabaseURL = "" }, wantErr: "store.database_url is required"},
		{name: "driver", mode: "migrate", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "store.driver must be postgres or sqlite"},
		{name: "unknown mode", mode: "bogus", wantErr: "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
