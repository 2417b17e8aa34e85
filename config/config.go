package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ProcessorsConfig struct {
	PrimaryURL      string `mapstructure:"primary_url"`
	SecondaryURL    string `mapstructure:"secondary_url"`
	DeliveryTimeout string `mapstructure:"delivery_timeout"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	FailureWindow    string `mapstructure:"failure_window"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
	SingleTrial      bool   `mapstructure:"single_trial"`
}

type DispatchConfig struct {
	Driver         string `mapstructure:"driver"`
	Workers        int    `mapstructure:"workers"`
	Capacity       int    `mapstructure:"capacity"`
	Overflow       string `mapstructure:"overflow"`
	EnqueueTimeout string `mapstructure:"enqueue_timeout"`
	DrainTimeout   string `mapstructure:"drain_timeout"`
}

type StoreConfig struct {
	Driver         string `mapstructure:"driver"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
}

type BrokerConfig struct {
	AMQPURL string `mapstructure:"amqp_url"`
	Queue   string `mapstructure:"queue"`
}

type AdminConfig struct {
	PurgeEnabled bool `mapstructure:"purge_enabled"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Processors     ProcessorsConfig     `mapstructure:"processors"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Store          StoreConfig          `mapstructure:"store"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Admin          AdminConfig          `mapstructure:"admin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)

	v.SetDefault("processors.primary_url", "http://localhost:8001")
	v.SetDefault("processors.secondary_url", "http://localhost:8002")
	v.SetDefault("processors.delivery_timeout", "5s")

	v.SetDefault("health_check.interval", "5s")
	v.SetDefault("health_check.timeout", "3s")

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.failure_window", "60s")
	v.SetDefault("circuit_breaker.reset_timeout", "10s")
	v.SetDefault("circuit_breaker.single_trial", true)

	v.SetDefault("dispatch.driver", "memory")
	v.SetDefault("dispatch.workers", 1)
	v.SetDefault("dispatch.capacity", 0)
	v.SetDefault("dispatch.overflow", "block")
	v.SetDefault("dispatch.enqueue_timeout", "100ms")
	v.SetDefault("dispatch.drain_timeout", "10s")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_key_prefix", "payment-router:")

	v.SetDefault("broker.amqp_url", "")
	v.SetDefault("broker.queue", "payments")

	v.SetDefault("admin.purge_enabled", false)
}

// Load reads defaults, an optional config.yaml and the environment, in
// increasing priority. A .env file in the working directory is loaded into
// the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Processors,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProcessorsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProcessorsConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.PrimaryURL,
						validation.Required,
						validation.By(validateServerURL),
					),
					validation.Field(&pc.SecondaryURL,
						validation.Required,
						validation.By(validateServerURL),
					),
					validation.Field(&pc.DeliveryTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cb.FailureWindow,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cb.ResetTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Dispatch,
			validation.Required,
			validation.By(func(value interface{}) error {
				dc, ok := value.(DispatchConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a DispatchConfig")
				}
				return validation.ValidateStruct(&dc,
					validation.Field(&dc.Driver,
						validation.Required,
						validation.In("memory", "amqp"),
					),
					validation.Field(&dc.Workers,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&dc.Capacity,
						validation.Min(0),
					),
					validation.Field(&dc.Overflow,
						validation.Required,
						validation.In("block", "reject", "drop-oldest"),
					),
					validation.Field(&dc.EnqueueTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&dc.DrainTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Store,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StoreConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StoreConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Driver,
						validation.Required,
						validation.In("memory", "postgres", "redis"),
					),
					validation.Field(&sc.PostgresDSN,
						validation.When(sc.Driver == "postgres", validation.Required),
					),
					validation.Field(&sc.RedisAddr,
						validation.When(sc.Driver == "redis", validation.Required, validation.By(validateHostPort)),
					),
					// Purge deletes every key under the prefix.
					validation.Field(&sc.RedisKeyPrefix,
						validation.When(sc.Driver == "redis", validation.Required),
					),
				)
			}),
		),
		validation.Field(&c.Broker,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BrokerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BrokerConfig")
				}
				amqpDriver := c.Dispatch.Driver == "amqp"
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.AMQPURL,
						validation.When(amqpDriver, validation.Required, validation.By(validateAMQPURL)),
					),
					validation.Field(&bc.Queue,
						validation.When(amqpDriver, validation.Required),
					),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				if ac.PurgeEnabled && c.Server.Environment == EnvProd {
					return validation.NewError("validation_purge_in_prod", "purge cannot be enabled in prod")
				}
				return nil
			}),
		),
	)
}

// Duration parses a validated duration field.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateAMQPURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		return validation.NewError("validation_invalid_scheme", "URL must use amqp or amqps scheme")
	}

	return nil
}
