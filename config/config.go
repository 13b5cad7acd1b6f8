package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
	Poller     PollerConfig     `yaml:"poller"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Debug  bool   `yaml:"debug"`
	Output string `yaml:"output"`
}

// APIConfig describes the upstream fleet API.
type APIConfig struct {
	URL            string            `yaml:"url"`
	Key            string            `yaml:"key"`
	HTTPProxy      string            `yaml:"http_proxy"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
}

// PollerConfig holds the per-session polling configuration.
type PollerConfig struct {
	IntervalSeconds     int           `yaml:"interval_seconds"`
	Interval            time.Duration `yaml:"-"` // Ignored by YAML parser
	FetchTimeoutSeconds int           `yaml:"fetch_timeout_seconds"`
	FetchTimeout        time.Duration `yaml:"-"`
	// Sessions without client activity for this long are closed.
	SessionIdleSeconds  int           `yaml:"session_idle_seconds"`
	SessionIdle         time.Duration `yaml:"-"`
}

// StorageConfig selects where the device list is persisted.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // database | redis | memory
	Key         string `yaml:"key"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres | sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
	BackendMemory   = "memory"

	DefaultStorageKey = "apiData"
)

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	cfg.ApplyDefaults()

	return &cfg, nil
}

// applyEnv lets deployments keep the API credentials out of the config file.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("FLEET_API_URL"); ok && v != "" {
		cfg.API.URL = v
	}
	if v, ok := os.LookupEnv("FLEET_API_KEY"); ok && v != "" {
		cfg.API.Key = v
	}
}

// ApplyDefaults fills zero values and derives the time.Duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 2
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 30
	}
	cfg.API.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second

	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 5
	}
	cfg.Poller.Interval = time.Duration(cfg.Poller.IntervalSeconds) * time.Second

	// A fetch must finish inside one polling interval.
	if cfg.Poller.FetchTimeoutSeconds <= 0 || cfg.Poller.FetchTimeoutSeconds > cfg.Poller.IntervalSeconds {
		cfg.Poller.FetchTimeoutSeconds = cfg.Poller.IntervalSeconds
	}
	cfg.Poller.FetchTimeout = time.Duration(cfg.Poller.FetchTimeoutSeconds) * time.Second

	if cfg.Poller.SessionIdleSeconds <= 0 {
		cfg.Poller.SessionIdleSeconds = 120
	}
	cfg.Poller.SessionIdle = time.Duration(cfg.Poller.SessionIdleSeconds) * time.Second

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendDatabase
	}
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = DefaultStorageKey
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "fleet:"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "fleet.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}

// PushConfigured reports whether notifications can be sent.
func (cfg *Config) PushConfigured() bool {
	return cfg.Push.Enabled && cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != ""
}
