// Package config loads service settings from an optional YAML file, an
// optional .env file and the environment, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"txn-ingest/pkg/cache/memory"
	"txn-ingest/pkg/cache/redis"
	"txn-ingest/pkg/chain"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/resilience"
	"txn-ingest/pkg/store/sqlstore"
)

// Store drivers accepted in store.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxUploadBytes caps the request body of an upload; larger requests get 413
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// StoreConfig selects and tunes the transaction store.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	// DSN wins over the individual PostgreSQL fields when set
	DSN string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// Timeout bounds every store call made through the circuit breaker
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenDuration is how long the breaker stays open before probing again
	OpenDuration time.Duration `yaml:"open_duration"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseTTL is the lifetime of a cached result in the last layer
	BaseTTL time.Duration `yaml:"base_ttl"`

	// TTLDecay shortens upper layer TTLs; 0 keeps them uniform
	TTLDecay float64 `yaml:"ttl_decay"`

	// LayerTTLs pins the TTL of each layer in lookup order and wins over
	// TTLDecay; zero entries fall back to BaseTTL
	LayerTTLs []time.Duration `yaml:"layer_ttls"`

	L1Size int `yaml:"l1_size"`

	// RedisAddr enables the shared Redis layer when set
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Development bool   `yaml:"development"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  10 << 20,
		},
		Store: StoreConfig{
			Driver:           DriverPostgres,
			Host:             "localhost",
			Port:             5432,
			User:             "postgres",
			Password:         "postgres",
			Database:         "transactions",
			SSLMode:          "disable",
			MaxOpenConns:     25,
			MaxIdleConns:     5,
			ConnMaxLifetime:  5 * time.Minute,
			Timeout:          5 * time.Second,
			FailureThreshold: 5,
			OpenDuration:     30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:     true,
			BaseTTL:     time.Minute,
			L1Size:      1000,
			RedisPrefix: "txn:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Namespace: "txn_ingest",
		},
	}
}

// Load reads path (skipped when empty), then envFile (".env" when empty,
// ignored when missing), then the environment, and validates the result.
func Load(path, envFile string) (*Config, error) {
	if envFile == "" {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with environment variables. Parse errors
// are collected and returned together.
func (c *Config) applyEnv() error {
	e := &envReader{}

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	e.setString("TXN_ADDR", &c.Server.Addr)
	e.setInt64("TXN_MAX_UPLOAD_BYTES", &c.Server.MaxUploadBytes)

	e.setString("TXN_STORE_DRIVER", &c.Store.Driver)
	e.setString("TXN_STORE_DSN", &c.Store.DSN)
	e.setString("POSTGRES_HOST", &c.Store.Host)
	e.setInt("POSTGRES_PORT", &c.Store.Port)
	e.setString("POSTGRES_USER", &c.Store.User)
	e.setString("POSTGRES_PASSWORD", &c.Store.Password)
	e.setString("POSTGRES_DB", &c.Store.Database)
	e.setString("POSTGRES_SSLMODE", &c.Store.SSLMode)
	e.setDuration("TXN_STORE_TIMEOUT", &c.Store.Timeout)

	e.setBool("TXN_CACHE_ENABLED", &c.Cache.Enabled)
	e.setDuration("TXN_CACHE_TTL", &c.Cache.BaseTTL)
	e.setString("REDIS_ADDR", &c.Cache.RedisAddr)
	e.setString("REDIS_PASSWORD", &c.Cache.RedisPassword)
	e.setInt("REDIS_DB", &c.Cache.RedisDB)

	e.setString("LOG_LEVEL", &c.Log.Level)
	e.setString("LOG_FORMAT", &c.Log.Format)
	e.setBool("LOG_DEV", &c.Log.Development)

	return errors.Join(e.errs...)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %s, %s or %s, got %q",
			DriverPostgres, DriverSQLite, DriverMemory, c.Store.Driver))
	}
	if c.Store.Driver == DriverSQLite && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required for sqlite3"))
	}
	if c.Store.Timeout < 0 || c.Store.OpenDuration < 0 {
		errs = append(errs, errors.New("store timeouts must not be negative"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Cache.L1Size < 0 {
		errs = append(errs, errors.New("cache.l1_size must not be negative"))
	}
	if c.Cache.BaseTTL < 0 {
		errs = append(errs, errors.New("cache.base_ttl must not be negative"))
	}
	if c.Cache.TTLDecay < 0 || c.Cache.TTLDecay >= 1 {
		errs = append(errs, errors.New("cache.ttl_decay must be in [0, 1)"))
	}
	for _, ttl := range c.Cache.LayerTTLs {
		if ttl < 0 {
			errs = append(errs, errors.New("cache.layer_ttls must not be negative"))
			break
		}
	}

	return errors.Join(errs...)
}

// SQL returns the sqlstore settings.
func (s StoreConfig) SQL() sqlstore.Config {
	return sqlstore.Config{
		Driver:          s.Driver,
		DSN:             s.DSN,
		Host:            s.Host,
		Port:            s.Port,
		User:            s.User,
		Password:        s.Password,
		Database:        s.Database,
		SSLMode:         s.SSLMode,
		MaxOpenConns:    s.MaxOpenConns,
		MaxIdleConns:    s.MaxIdleConns,
		ConnMaxLifetime: s.ConnMaxLifetime,
		PingTimeout:     s.Timeout,
	}
}

// Resilience returns the breaker settings guarding the store.
func (s StoreConfig) Resilience() resilience.ResilientConfig {
	config := resilience.DefaultResilientConfig().WithTimeout(s.Timeout)
	if s.OpenDuration > 0 {
		config = config.WithCircuitBreakerTimeout(s.OpenDuration)
	}
	if s.FailureThreshold > 0 {
		config.CircuitBreakerConfig.ReadyToTrip = resilience.ConsecutiveFailures(s.FailureThreshold)
	}
	return config
}

// Memory returns the L1 layer settings.
func (c CacheConfig) Memory() memory.MemoryCacheConfig {
	return memory.MemoryCacheConfig{
		Name:       "L1",
		MaxSize:    c.L1Size,
		DefaultTTL: c.BaseTTL,
	}
}

// Redis returns the L2 layer settings.
func (c CacheConfig) Redis() redis.RedisCacheConfig {
	config := redis.DefaultRedisCacheConfig()
	config.Name = "L2"
	config.Addr = c.RedisAddr
	config.Password = c.RedisPassword
	config.DB = c.RedisDB
	if c.RedisPrefix != "" {
		config.KeyPrefix = c.RedisPrefix
	}
	if c.BaseTTL > 0 {
		config.DefaultTTL = c.BaseTTL
	}
	return config
}

// Chain returns the chain settings; the caller adds metrics.
func (c CacheConfig) Chain() chain.Config {
	config := chain.DefaultConfig()
	if c.BaseTTL > 0 {
		config.BaseTTL = c.BaseTTL
	}
	switch {
	case len(c.LayerTTLs) > 0:
		config.TTLStrategy = &chain.CustomTTLStrategy{TTLs: c.LayerTTLs}
	case c.TTLDecay > 0:
		config.TTLStrategy = &chain.DecayingTTLStrategy{DecayFactor: c.TTLDecay}
	}
	return config
}

// Logging returns the logger settings.
func (l LogConfig) Logging() logging.Config {
	config := logging.DefaultConfig()
	if l.Development {
		config = logging.DevelopmentConfig()
	}
	if l.Level != "" {
		config.Level = l.Level
	}
	if l.Format != "" {
		config.Format = l.Format
	}
	return config
}

type envReader struct {
	errs []error
}

func (e *envReader) setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = d
	}
}
