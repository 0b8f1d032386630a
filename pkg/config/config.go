package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/scorecard/pkg/auth"
	"github.com/platinummonkey/scorecard/pkg/observability"
	"github.com/platinummonkey/scorecard/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	JWT           JWTConfig           `yaml:"jwt"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// Addr returns host:port for the API listener
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns host:port for the probe and metrics listener
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// DatabaseConfig holds connection pool settings
type DatabaseConfig struct {
	Driver   string        `yaml:"driver"`
	URL      string        `yaml:"url"`
	MaxConns int           `yaml:"max_conns"`
	MinConns int           `yaml:"min_conns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Storage converts the settings into a storage.Config
func (d DatabaseConfig) Storage() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.Driver = d.Driver
	cfg.URL = d.URL
	cfg.MaxConns = d.MaxConns
	cfg.MinConns = d.MinConns
	cfg.Timeout = d.Timeout
	return cfg
}

// RedisConfig holds the optional Redis connection. An empty URL disables it.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// Enabled reports whether a Redis URL is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// Storage converts the settings into a storage.RedisConfig
func (r RedisConfig) Storage() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        r.URL,
		Password:   r.Password,
		DB:         r.DB,
		MaxRetries: r.MaxRetries,
		PoolSize:   r.PoolSize,
	}
}

// JWTConfig holds the Ed25519 key pair in PEM form
type JWTConfig struct {
	PrivateKey string        `yaml:"private_key"`
	PublicKey  string        `yaml:"public_key"`
	TTL        time.Duration `yaml:"ttl"`
	Issuer     string        `yaml:"issuer"`
}

// ThrottleConfig bounds login attempts per client address
type ThrottleConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
	// CacheSize bounds the in-memory fallback used without Redis
	CacheSize int `yaml:"cache_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings into an observability.OTelConfig
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used before any file or environment
// overrides. It has no signing keys and so does not validate on its own.
func Default() *Config {
	db := storage.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "5003",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			Driver:   db.Driver,
			URL:      db.URL,
			MaxConns: db.MaxConns,
			MinConns: db.MinConns,
			Timeout:  db.Timeout,
		},
		Redis: RedisConfig{MaxRetries: 3, PoolSize: 10},
		JWT: JWTConfig{
			TTL:    auth.DefaultTokenTTL,
			Issuer: auth.DefaultIssuerName,
		},
		Throttle: ThrottleConfig{
			Attempts:  10,
			Window:    time.Minute,
			CacheSize: 10000,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "scorecard",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by SCORECARD_CONFIG_FILE (if any), then SCORECARD_* environment
// variables, and validates the result
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SCORECARD_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML document at path onto cfg
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides every field that has a SCORECARD_* variable set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("SCORECARD_HOST", s.Host)
	s.Port = getEnv("SCORECARD_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("SCORECARD_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("SCORECARD_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("SCORECARD_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SCORECARD_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("SCORECARD_HEALTH_PORT", s.HealthPort)
	s.CORSOrigins = getEnvList("SCORECARD_CORS_ORIGINS", s.CORSOrigins)

	d := &c.Database
	d.Driver = getEnv("SCORECARD_DATABASE_DRIVER", d.Driver)
	d.URL = getEnv("SCORECARD_DATABASE_URL", d.URL)
	d.MaxConns = getEnvInt("SCORECARD_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("SCORECARD_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("SCORECARD_DATABASE_TIMEOUT", d.Timeout)

	r := &c.Redis
	r.URL = getEnv("SCORECARD_REDIS_URL", r.URL)
	r.Password = getEnv("SCORECARD_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("SCORECARD_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("SCORECARD_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("SCORECARD_REDIS_POOL_SIZE", r.PoolSize)

	j := &c.JWT
	j.PrivateKey = getEnv("SCORECARD_JWT_PRIVATE_KEY", j.PrivateKey)
	j.PublicKey = getEnv("SCORECARD_JWT_PUBLIC_KEY", j.PublicKey)
	j.TTL = getEnvDuration("SCORECARD_JWT_TTL", j.TTL)
	j.Issuer = getEnv("SCORECARD_JWT_ISSUER", j.Issuer)

	t := &c.Throttle
	t.Attempts = getEnvInt("SCORECARD_LOGIN_ATTEMPTS", t.Attempts)
	t.Window = getEnvDuration("SCORECARD_LOGIN_WINDOW", t.Window)
	t.CacheSize = getEnvInt("SCORECARD_LOGIN_CACHE_SIZE", t.CacheSize)

	o := &c.Observability
	o.LogLevel = getEnv("SCORECARD_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("SCORECARD_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("SCORECARD_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("SCORECARD_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("SCORECARD_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("SCORECARD_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("SCORECARD_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("SCORECARD_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid. The signing key pair must
// be present, parse as Ed25519 and belong together.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	switch c.Database.Driver {
	case string(storage.DialectPostgres), string(storage.DialectSQLite):
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}

	if err := c.JWT.validate(); err != nil {
		return err
	}

	if c.Throttle.Attempts <= 0 || c.Throttle.Window <= 0 {
		return fmt.Errorf("login throttle attempts and window must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func (j JWTConfig) validate() error {
	priv, err := auth.ParsePrivateKeyPEM(j.PrivateKey)
	if err != nil {
		return fmt.Errorf("SCORECARD_JWT_PRIVATE_KEY: %w", err)
	}
	pub, err := auth.ParsePublicKeyPEM(j.PublicKey)
	if err != nil {
		return fmt.Errorf("SCORECARD_JWT_PUBLIC_KEY: %w", err)
	}
	if !auth.KeysMatch(priv, pub) {
		return fmt.Errorf("JWT public key does not match the private key")
	}
	if j.TTL <= 0 {
		return fmt.Errorf("JWT TTL must be positive")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
