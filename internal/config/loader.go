package config

import (
	"context"
	stderrors "errors"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/logger"
)

const envPrefix = "INVOICER"

// Loader reads configuration from defaults, an optional YAML file and the environment.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader creates a loader. configFile may be empty to use the search paths.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/invoicer/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log}
}

// LoadEnvFile exports the variables of a dotenv file into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string, log logger.Logger) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			log.Debug(context.Background(), "No env file found", logger.String("file", path))
			return nil
		}
		return errors.ErrConfiguration("env file", "unreadable").WithCause(err)
	}
	return nil
}

// LoadConfig loads the configuration from file, environment variables, and defaults.
func LoadConfig(log logger.Logger) (*Config, error) {
	return NewLoader("", log).Load()
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrConfiguration("config file", "unreadable").WithCause(err)
		}
		l.log.Debug(context.Background(), "No config file found, using defaults and environment")
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrConfiguration("config", "failed to unmarshal").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch invokes onChange with the re-read configuration whenever the config file changes.
// Invalid edits are logged and ignored so a typo never takes the service down.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			l.log.Error(context.Background(), "Failed to reload config", err, logger.String("file", e.Name))
			return
		}
		if err := cfg.Validate(); err != nil {
			l.log.Error(context.Background(), "Reloaded config is invalid", err, logger.String("file", e.Name))
			return
		}
		l.log.Info(context.Background(), "Config reloaded", logger.String("file", e.Name), logger.String("op", e.Op.String()))
		onChange(&cfg)
	})
	l.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 60)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.database", "invoicer.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("security.key_source", constants.KeySourceEnv)
	v.SetDefault("security.app_key_env", constants.DefaultAppKeyEnv)
	v.SetDefault("security.accept_legacy_cbc", true)
	v.SetDefault("security.vault.address", "")
	v.SetDefault("security.vault.token", "")
	v.SetDefault("security.vault.path", "")
	v.SetDefault("security.vault.key_field", "app_key")

	v.SetDefault("session.cookie_name", constants.DefaultSessionCookieName)
	v.SetDefault("session.ttl", constants.DefaultSessionTTL)
	v.SetDefault("session.login_path", constants.DefaultLoginPath)
	v.SetDefault("session.home_path", "/")
	v.SetDefault("session.trust_proxy_headers", false)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.driver", string(constants.RateLimitDriverFile))
	v.SetDefault("rate_limit.directory", "storage/framework/ratelimit")
	v.SetDefault("rate_limit.strategy", string(constants.RateLimitStrategyIP))
	v.SetDefault("rate_limit.max", constants.DefaultRateLimitMax)
	v.SetDefault("rate_limit.window", constants.DefaultRateLimitWindow)
	v.SetDefault("rate_limit.login_max", constants.DefaultLoginThrottleMax)
	v.SetDefault("rate_limit.login_window", constants.DefaultLoginThrottleWindow)
	v.SetDefault("rate_limit.prune_interval", constants.DefaultRateLimitPruneInterval)
	v.SetDefault("rate_limit.headers.limit", constants.HeaderRateLimitLimit)
	v.SetDefault("rate_limit.headers.remaining", constants.HeaderRateLimitRemaining)
	v.SetDefault("rate_limit.headers.reset", constants.HeaderRateLimitReset)
	v.SetDefault("rate_limit.headers.retry_after", constants.HeaderRetryAfter)

	v.SetDefault("signed_url.ttl", constants.DefaultSignedURLTTL)
	v.SetDefault("signed_url.base_url", "http://localhost:8080")
	v.SetDefault("signed_url.storage_root", "storage/app/private")

	v.SetDefault("audit.persist", false)
	v.SetDefault("audit.kafka.enabled", false)
	v.SetDefault("audit.kafka.brokers", []string{})
	v.SetDefault("audit.kafka.topic", "invoicer.audit")
	v.SetDefault("audit.kafka.write_timeout", 10*time.Second)
	v.SetDefault("audit.kafka.batch_timeout", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.service_name", "invoicer")
	v.SetDefault("tracing.sampling_rate", 1.0)
}
