package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full application configuration.
type Config struct {
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	SmartLead  SmartLeadConfig  `yaml:"smartlead" mapstructure:"smartlead"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SourcesConfig holds the read-only connection strings of the two upstream databases.
type SourcesConfig struct {
	ClientsURL   string `yaml:"clients_url" mapstructure:"clients_url"`
	ReportingURL string `yaml:"reporting_url" mapstructure:"reporting_url"`
	MaxConns     int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// StoreConfig configures the local store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// IngestConfig sets the ingest windows.
type IngestConfig struct {
	DaysBack              int `yaml:"days_back" mapstructure:"days_back"`
	UnmatchedLookbackDays int `yaml:"unmatched_lookback_days" mapstructure:"unmatched_lookback_days"`
	HistoricalWeeks       int `yaml:"historical_weeks" mapstructure:"historical_weeks"`
}

// SmartLeadConfig holds SmartLead API settings.
type SmartLeadConfig struct {
	APIKey             string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	MaxWorkers         int     `yaml:"max_workers" mapstructure:"max_workers"`
	PageSize           int     `yaml:"page_size" mapstructure:"page_size"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	TaskTimeoutSecs    int     `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSec int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ScoringConfig points at an optional thresholds override file.
type ScoringConfig struct {
	ThresholdsFile string `yaml:"thresholds_file" mapstructure:"thresholds_file"`
}

// LockConfig configures the cross-process run lock.
type LockConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	Name     string `yaml:"name" mapstructure:"name"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// MetricsConfig configures the Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
}

// MonitoringConfig configures run-health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	LeadFailureThreshold float64 `yaml:"lead_failure_threshold" mapstructure:"lead_failure_threshold"`
	RedShareThreshold    float64 `yaml:"red_share_threshold" mapstructure:"red_share_threshold"`
	RepeatAfterMins      int     `yaml:"repeat_after_mins" mapstructure:"repeat_after_mins"`
}

// ServerConfig configures the dashboard API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging. File, when set, receives a rotated copy.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads .env, then config.yaml, then CLIENT_HEALTH_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLIENT_HEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows, so secrets
	// without a default are bound explicitly.
	for _, k := range []string{
		"sources.clients_url", "sources.reporting_url", "store.database_url",
		"smartlead.api_key", "lock.redis_url", "metrics.pushgateway_url",
		"monitoring.webhook_url", "scoring.thresholds_file", "log.file",
	} {
		_ = v.BindEnv(k)
	}

	v.SetDefault("sources.max_conns", 4)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("ingest.days_back", 30)
	v.SetDefault("ingest.unmatched_lookback_days", 30)
	v.SetDefault("ingest.historical_weeks", 4)
	v.SetDefault("smartlead.base_url", "https://server.smartlead.ai/api/v1")
	v.SetDefault("smartlead.max_workers", 10)
	v.SetDefault("smartlead.page_size", 100)
	v.SetDefault("smartlead.request_timeout_secs", 30)
	v.SetDefault("smartlead.task_timeout_secs", 600)
	v.SetDefault("smartlead.rate_per_sec", 10)
	v.SetDefault("smartlead.max_retries", 3)
	v.SetDefault("smartlead.breaker_threshold", 10)
	v.SetDefault("smartlead.breaker_cooldown_secs", 60)
	v.SetDefault("lock.name", "client-health-run")
	v.SetDefault("lock.ttl_secs", 1800)
	v.SetDefault("metrics.job", "client_health")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_hours", 26)
	v.SetDefault("monitoring.lead_failure_threshold", 0.2)
	v.SetDefault("monitoring.red_share_threshold", 0)
	v.SetDefault("monitoring.repeat_after_mins", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
}

// Validate checks the settings a command mode needs. Modes: run, quick,
// not-contacted, serve, export, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(val, key string) {
		if val == "" {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "run", "quick":
		require(c.Sources.ClientsURL, "sources.clients_url")
		require(c.Sources.ReportingURL, "sources.reporting_url")
		require(c.Store.DatabaseURL, "store.database_url")
		if mode == "run" {
			require(c.SmartLead.APIKey, "smartlead.api_key")
		}
		if c.Ingest.DaysBack <= 0 {
			errs = append(errs, "ingest.days_back must be > 0")
		}
		if c.Ingest.HistoricalWeeks < 0 || c.Ingest.HistoricalWeeks > 4 {
			errs = append(errs, "ingest.historical_weeks must be between 0 and 4")
		}
	case "not-contacted":
		require(c.Store.DatabaseURL, "store.database_url")
		require(c.SmartLead.APIKey, "smartlead.api_key")
	case "serve":
		require(c.Store.DatabaseURL, "store.database_url")
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "export", "migrate":
		require(c.Store.DatabaseURL, "store.database_url")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "run" || mode == "not-contacted" {
		if c.SmartLead.MaxWorkers < 1 || c.SmartLead.MaxWorkers > 50 {
			errs = append(errs, "smartlead.max_workers must be between 1 and 50")
		}
		if c.SmartLead.PageSize < 1 {
			errs = append(errs, "smartlead.page_size must be > 0")
		}
	}
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)
	return nil
}
