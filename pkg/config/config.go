package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/factgraph/pkg/retry"
)

// Config holds all configuration for factgraph.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// MigrationsPath is the directory holding the SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// MetricsAddr exposes Prometheus metrics when non-empty (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR" env-default:""`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Search   SearchConfig   `yaml:"search"`
	Cache    CacheConfig    `yaml:"cache"`
	Lock     LockConfig     `yaml:"lock"`
	Retry    retry.Config   `yaml:"retry"`
	Reindex  ReindexConfig  `yaml:"reindex"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"factgraph"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"factgraph"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional distributed cache configuration.
// An empty host disables the Redis cache level.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"15m"`
}

// NATSConfig holds replication settings. An empty URL disables replication.
type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL" env-default:""`
	Stream        string `yaml:"stream" env:"NATS_STREAM" env-default:"FACTGRAPH"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX" env-default:"factgraph"`
}

// SearchConfig holds the embedded search index settings.
type SearchConfig struct {
	DataDir string `yaml:"data_dir" env:"SEARCH_DATA_DIR" env-default:"data/search"`
}

// CacheSpec sizes a single cache.
type CacheSpec struct {
	MaxSize int           `yaml:"max_size" env:"MAX_SIZE"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// CacheConfig holds resolver and manager cache settings.
// Fact caches expire after write; Object and type caches expire after access.
type CacheConfig struct {
	FactByID          CacheSpec     `yaml:"fact_by_id" env-prefix:"CACHE_FACT_BY_ID_"`
	FactByHash        CacheSpec     `yaml:"fact_by_hash" env-prefix:"CACHE_FACT_BY_HASH_"`
	ObjectByID        CacheSpec     `yaml:"object_by_id" env-prefix:"CACHE_OBJECT_BY_ID_"`
	ObjectByTypeValue CacheSpec     `yaml:"object_by_type_value" env-prefix:"CACHE_OBJECT_BY_TYPE_VALUE_"`
	TypeCacheTTL      time.Duration `yaml:"type_cache_ttl" env:"CACHE_TYPE_TTL" env-default:"10m"`
	TypeCacheMaxSize  int           `yaml:"type_cache_max_size" env:"CACHE_TYPE_MAX_SIZE" env-default:"10000"`
}

// LockConfig holds the advisory lock settings.
type LockConfig struct {
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"LOCK_WAIT_TIMEOUT" env-default:"10s"`
	Lease       time.Duration `yaml:"lease" env:"LOCK_LEASE" env-default:"60s"`
}

// ReindexConfig holds the settings of the reindex and time global maintenance commands.
type ReindexConfig struct {
	Workers int `yaml:"workers" env:"REINDEX_WORKERS" env-default:"8"`
	// TimeGlobalObjectTypes names the ObjectTypes whose Facts are searchable regardless of time window.
	TimeGlobalObjectTypes []string `yaml:"time_global_object_types" env:"TIME_GLOBAL_OBJECT_TYPES" env-separator:","`
}

// Default cache sizes.
const (
	DefaultFactCacheSize   = 500_000
	DefaultFactCacheTTL    = 5 * time.Minute
	DefaultObjectCacheSize = 1_000_000
	DefaultObjectCacheTTL  = 15 * time.Minute
)

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	return cfg.finish()
}

// LoadFromEnv reads configuration from environment variables only.
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg.finish()
}

func (c *Config) finish() (*Config, error) {
	c.Cache.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *CacheConfig) applyDefaults() {
	defaultSpec(&c.FactByID, DefaultFactCacheSize, DefaultFactCacheTTL)
	defaultSpec(&c.FactByHash, DefaultFactCacheSize, DefaultFactCacheTTL)
	defaultSpec(&c.ObjectByID, DefaultObjectCacheSize, DefaultObjectCacheTTL)
	defaultSpec(&c.ObjectByTypeValue, DefaultObjectCacheSize, DefaultObjectCacheTTL)
}

func defaultSpec(s *CacheSpec, size int, ttl time.Duration) {
	if s.MaxSize == 0 {
		s.MaxSize = size
	}
	if s.TTL == 0 {
		s.TTL = ttl
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Cache.FactByID.MaxSize < 0 || c.Cache.FactByHash.MaxSize < 0 ||
		c.Cache.ObjectByID.MaxSize < 0 || c.Cache.ObjectByTypeValue.MaxSize < 0 {
		errs = append(errs, errors.New("cache sizes must not be negative"))
	}
	if c.Lock.WaitTimeout <= 0 {
		errs = append(errs, errors.New("lock wait_timeout must be positive"))
	}
	if c.Reindex.Workers < 0 {
		errs = append(errs, errors.New("reindex workers must not be negative"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry max_retries must not be negative"))
	}
	if c.NATS.URL != "" {
		if _, err := url.Parse(c.NATS.URL); err != nil {
			errs = append(errs, fmt.Errorf("nats url: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
