// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/coworkbill/domain/billing"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Redis     RedisConfig     `yaml:"redis"`
	Billing   BillingConfig   `yaml:"billing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// EnableOpenAPI serves the API document and the Swagger UI.
	EnableOpenAPI bool `yaml:"enable_openapi"`
}

// StoreConfig selects the invoice store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "firestore", "sqlite" or "memory"
	DSN    string `yaml:"dsn"`    // sqlite file path
}

// FirestoreConfig configures the Firestore store.
type FirestoreConfig struct {
	ProjectID         string `yaml:"project_id"`
	CredentialsFile   string `yaml:"credentials_file,omitempty"`
	TenantsCollection string `yaml:"tenants_collection"`
	BillsCollection   string `yaml:"bills_collection"`
}

// RedisConfig configures the distributed check lock. An empty address
// selects an in-process lock.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	LockKey  string        `yaml:"lock_key"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// BillingConfig configures the recurring check.
type BillingConfig struct {
	CheckInterval time.Duration  `yaml:"check_interval"`
	CheckTimeout  time.Duration  `yaml:"check_timeout"`
	Concurrency   int            `yaml:"concurrency"`
	Periods       []PeriodConfig `yaml:"periods"`
}

// PeriodConfig overrides or adds a billing period. Length may be given as a
// duration or in whole days.
type PeriodConfig struct {
	Name      string        `yaml:"name"`
	Length    time.Duration `yaml:"length"`
	Days      int           `yaml:"days"`
	Step      time.Duration `yaml:"step"`
	Tolerance time.Duration `yaml:"tolerance"`
}

// Calendar builds the period calendar from the defaults and overrides.
func (b BillingConfig) Calendar() *billing.Calendar {
	periods := make([]billing.Period, 0, len(b.Periods))
	for _, p := range b.Periods {
		periods = append(periods, p.period())
	}
	return billing.NewCalendar(periods)
}

func (p PeriodConfig) period() billing.Period {
	length := p.Length
	if length == 0 && p.Days > 0 {
		length = time.Duration(p.Days) * 24 * time.Hour
	}
	return billing.Period{
		Name:      p.Name,
		Length:    length,
		Step:      p.Step,
		Tolerance: p.Tolerance,
	}
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	COWORKBILL_SERVER_HOST               - Server host (default: 0.0.0.0)
//	COWORKBILL_SERVER_PORT               - Server port (default: 8080)
//	COWORKBILL_SERVER_ENABLE_OPENAPI     - Serve /swagger and the API document
//	COWORKBILL_STORE_DRIVER              - firestore, sqlite or memory (default: sqlite)
//	COWORKBILL_STORE_DSN                 - SQLite path (default: coworkbill.db)
//	COWORKBILL_FIRESTORE_PROJECT_ID      - Google Cloud project
//	COWORKBILL_FIRESTORE_CREDENTIALS_FILE - Service account JSON
//	COWORKBILL_REDIS_ADDR                - Redis address for the check lock
//	COWORKBILL_BILLING_CHECK_INTERVAL    - Interval between checks (default: 60s)
//	COWORKBILL_BILLING_CONCURRENCY       - Tenants processed in parallel (default: 4)
//	COWORKBILL_LOG_LEVEL                 - debug, info, warn, error (default: info)
//	COWORKBILL_LOG_FORMAT                - json or console (default: json)
//	COWORKBILL_METRICS_ENABLED           - Enable /metrics endpoint
//	COWORKBILL_CORS_ALLOWED_ORIGINS      - Comma separated origins
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from file when it exists and from the environment
// otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// HasEnvConfig returns true if the store is configured through the environment.
func HasEnvConfig() bool {
	return os.Getenv("COWORKBILL_STORE_DRIVER") != ""
}

// applyEnvOverrides applies COWORKBILL_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("COWORKBILL_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("COWORKBILL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("COWORKBILL_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("COWORKBILL_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	if v := os.Getenv("COWORKBILL_SERVER_ENABLE_OPENAPI"); v != "" {
		cfg.Server.EnableOpenAPI = parseBool(v)
	}

	// Store configuration
	if v := os.Getenv("COWORKBILL_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("COWORKBILL_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	// Firestore configuration
	if v := os.Getenv("COWORKBILL_FIRESTORE_PROJECT_ID"); v != "" {
		cfg.Firestore.ProjectID = v
	}
	if v := os.Getenv("COWORKBILL_FIRESTORE_CREDENTIALS_FILE"); v != "" {
		cfg.Firestore.CredentialsFile = v
	}

	// Redis configuration
	if v := os.Getenv("COWORKBILL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("COWORKBILL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("COWORKBILL_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	// Billing configuration
	envDuration("COWORKBILL_BILLING_CHECK_INTERVAL", &cfg.Billing.CheckInterval)
	envDuration("COWORKBILL_BILLING_CHECK_TIMEOUT", &cfg.Billing.CheckTimeout)
	if v := os.Getenv("COWORKBILL_BILLING_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Billing.Concurrency = n
		}
	}

	// Logging configuration
	if v := os.Getenv("COWORKBILL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COWORKBILL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("COWORKBILL_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("COWORKBILL_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// CORS configuration
	if v := os.Getenv("COWORKBILL_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = "coworkbill.db"
	}

	if cfg.Firestore.TenantsCollection == "" {
		cfg.Firestore.TenantsCollection = "tenants"
	}
	if cfg.Firestore.BillsCollection == "" {
		cfg.Firestore.BillsCollection = "bills"
	}

	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "coworkbill:lock:"
	}

	if cfg.Billing.CheckInterval == 0 {
		cfg.Billing.CheckInterval = 60 * time.Second
	}
	if cfg.Billing.CheckTimeout == 0 {
		cfg.Billing.CheckTimeout = 5 * time.Minute
	}
	if cfg.Billing.Concurrency == 0 {
		cfg.Billing.Concurrency = 4
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = cfg.Billing.CheckTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Store.Driver {
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore.project_id is required when store.driver is 'firestore'")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver must be one of: firestore, sqlite, memory, got %q", cfg.Store.Driver)
	}

	if cfg.Billing.CheckInterval < time.Second {
		return fmt.Errorf("billing.check_interval must be at least 1s, got %s", cfg.Billing.CheckInterval)
	}
	if cfg.Billing.CheckTimeout <= 0 {
		return fmt.Errorf("billing.check_timeout must be positive")
	}
	if cfg.Billing.Concurrency < 1 {
		return fmt.Errorf("billing.concurrency must be at least 1, got %d", cfg.Billing.Concurrency)
	}
	for i, p := range cfg.Billing.Periods {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("billing.periods[%d].name is required", i)
		}
		if p.period().Length <= 0 {
			return fmt.Errorf("billing.periods[%d] (%s) needs a positive length or days", i, p.Name)
		}
		if p.Step < 0 || p.Tolerance < 0 {
			return fmt.Errorf("billing.periods[%d] (%s) step and tolerance must not be negative", i, p.Name)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
