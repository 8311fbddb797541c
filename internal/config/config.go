package config

import (
	"fmt"
	"time"

	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	SignedURL SignedURLConfig `mapstructure:"signed_url"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // in seconds
	IdleTimeout    int      `mapstructure:"idle_timeout"`  // in seconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"` // in minutes
}

func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Database
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type SecurityConfig struct {
	// KeySource is "env" or "vault"
	KeySource string `mapstructure:"key_source"`
	// AppKeyEnv names the environment variable holding the secret key
	AppKeyEnv string `mapstructure:"app_key_env"`
	// AcceptLegacyCBC allows reading tokens written in the unauthenticated CBC envelope
	AcceptLegacyCBC bool        `mapstructure:"accept_legacy_cbc"`
	Vault           VaultConfig `mapstructure:"vault"`
}

type VaultConfig struct {
	Address  string `mapstructure:"address"`
	Token    string `mapstructure:"token"`
	Path     string `mapstructure:"path"`
	KeyField string `mapstructure:"key_field"`
}

type SessionConfig struct {
	CookieName        string        `mapstructure:"cookie_name"`
	TTL               time.Duration `mapstructure:"ttl"`
	LoginPath         string        `mapstructure:"login_path"`
	HomePath          string        `mapstructure:"home_path"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
}

type RateLimitConfig struct {
	Enabled       bool                        `mapstructure:"enabled"`
	Driver        constants.RateLimitDriver   `mapstructure:"driver"`
	Directory     string                      `mapstructure:"directory"`
	Strategy      constants.RateLimitStrategy `mapstructure:"strategy"`
	Max           int                         `mapstructure:"max"`
	Window        time.Duration               `mapstructure:"window"`
	LoginMax      int                         `mapstructure:"login_max"`
	LoginWindow   time.Duration               `mapstructure:"login_window"`
	PruneInterval time.Duration               `mapstructure:"prune_interval"`
	Headers       RateLimitHeaders            `mapstructure:"headers"`
}

// RateLimitHeaders lets deployments rename the limiter response headers.
type RateLimitHeaders struct {
	Limit      string `mapstructure:"limit"`
	Remaining  string `mapstructure:"remaining"`
	Reset      string `mapstructure:"reset"`
	RetryAfter string `mapstructure:"retry_after"`
}

type SignedURLConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	BaseURL     string        `mapstructure:"base_url"`
	StorageRoot string        `mapstructure:"storage_root"`
}

type AuditConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Persist also stores every event in the audit_events table.
	Persist bool `mapstructure:"persist"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	switch c.Security.KeySource {
	case constants.KeySourceEnv:
		if c.Security.AppKeyEnv == "" {
			return errors.ErrConfiguration("security.app_key_env", "must not be empty")
		}
	case constants.KeySourceVault:
		if c.Security.Vault.Address == "" || c.Security.Vault.Path == "" {
			return errors.ErrConfiguration("security.vault", "address and path are required")
		}
	default:
		return errors.ErrConfiguration("security.key_source", fmt.Sprintf("unsupported source %q", c.Security.KeySource))
	}

	if c.Session.CookieName == "" {
		return errors.ErrConfiguration("session.cookie_name", "must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.ErrConfiguration("session.ttl", "must be positive")
	}

	switch c.RateLimit.Driver {
	case constants.RateLimitDriverFile:
		if c.RateLimit.Directory == "" {
			return errors.ErrConfiguration("rate_limit.directory", "required for the file driver")
		}
	case constants.RateLimitDriverMemory:
	case constants.RateLimitDriverRedis:
		if !c.Redis.Enabled {
			return errors.ErrConfiguration("rate_limit.driver", "redis driver requires redis.enabled")
		}
	default:
		return errors.ErrConfiguration("rate_limit.driver", fmt.Sprintf("unsupported driver %q", c.RateLimit.Driver))
	}

	switch c.RateLimit.Strategy {
	case constants.RateLimitStrategyIP, constants.RateLimitStrategyRoute, constants.RateLimitStrategyIPRoute:
	default:
		return errors.ErrConfiguration("rate_limit.strategy", fmt.Sprintf("unsupported strategy %q", c.RateLimit.Strategy))
	}

	if c.RateLimit.Max <= 0 || c.RateLimit.LoginMax <= 0 {
		return errors.ErrConfiguration("rate_limit.max", "limits must be positive")
	}
	if c.RateLimit.Window < time.Second || c.RateLimit.LoginWindow < time.Second {
		return errors.ErrConfiguration("rate_limit.window", "windows must be at least one second")
	}

	if c.SignedURL.TTL <= 0 {
		return errors.ErrConfiguration("signed_url.ttl", "must be positive")
	}

	if c.Audit.Kafka.Enabled && (len(c.Audit.Kafka.Brokers) == 0 || c.Audit.Kafka.Topic == "") {
		return errors.ErrConfiguration("audit.kafka", "brokers and topic are required")
	}

	return nil
}
