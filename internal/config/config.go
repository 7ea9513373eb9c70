// Package config loads loader settings from defaults, an optional YAML file,
// an optional .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// DefaultUserAgent identifies the loader to the upstream.
const DefaultUserAgent = "swapi-loader/1.0 (+https://github.com/Sternrassler/swapi-loader)"

// DefaultEnvFile is read when present and no other file is given.
const DefaultEnvFile = ".env"

type Config struct {
	SWAPI    SWAPIConfig    `mapstructure:"swapi"`
	Run      RunConfig      `mapstructure:"run"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type SWAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent      string        `mapstructure:"user_agent" validate:"required"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Burst          int           `mapstructure:"burst" validate:"gte=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gte=0"`
}

type RunConfig struct {
	StartID           int `mapstructure:"start_id" validate:"gte=0"`
	EndID             int `mapstructure:"end_id" validate:"gtefield=StartID"`
	BatchSize         int `mapstructure:"batch_size" validate:"gte=1"`
	FetchConcurrency  int `mapstructure:"fetch_concurrency" validate:"gte=1"`
	InsertConcurrency int `mapstructure:"insert_concurrency" validate:"gte=1"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=postgres mysql sqlite"`
	User     string `mapstructure:"user" validate:"required_unless=Driver sqlite"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host" validate:"required_unless=Driver sqlite"`
	Port     int    `mapstructure:"port" validate:"required_unless=Driver sqlite,gte=0,lte=65535"`
	Name     string `mapstructure:"name" validate:"required_unless=Driver sqlite"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	Table    string `mapstructure:"table" validate:"required"`
}

type RedisConfig struct {
	// Addr enables the response cache when set.
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

// envBindings maps keys to environment variables that do not follow the
// KEY_WITH_UNDERSCORES scheme.
var envBindings = map[string]string{
	"database.user":     "POSTGRES_USER",
	"database.password": "POSTGRES_PASSWORD",
	"database.host":     "POSTGRES_HOST",
	"database.port":     "POSTGRES_PORT",
	"database.name":     "POSTGRES_DB",
}

var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault("swapi.base_url", "https://swapi.dev/api/")
	v.SetDefault("swapi.user_agent", DefaultUserAgent)
	v.SetDefault("swapi.timeout", 30*time.Second)
	v.SetDefault("swapi.rate_limit", 10.0)
	v.SetDefault("swapi.burst", 10)
	v.SetDefault("swapi.max_retries", 0)
	v.SetDefault("swapi.initial_backoff", time.Duration(0))

	v.SetDefault("run.start_id", 0)
	v.SetDefault("run.end_id", 100)
	v.SetDefault("run.batch_size", 1)
	v.SetDefault("run.fetch_concurrency", 10)
	v.SetDefault("run.insert_concurrency", 4)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.path", "")
	v.SetDefault("database.table", "swapi_people")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration. configFile is an optional YAML file; when
// empty, ./config.yaml is used if present. envFile is an optional dotenv
// file; when empty, ./.env is used if present. Real environment variables
// win over the dotenv file.
func Load(configFile, envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w", err)
		}
	}

	if err := applyDotEnv(v, envFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDotEnv sets keys from a dotenv file unless the real environment
// already provides them.
func applyDotEnv(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}

	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fmt.Errorf("env file %s could not be read: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		env := EnvName(key)
		if _, set := os.LookupEnv(env); set {
			continue
		}
		// viper lowercases dotenv keys
		dotKey := strings.ToLower(env)
		if dotenv.IsSet(dotKey) {
			v.Set(key, dotenv.GetString(dotKey))
		}
	}
	return nil
}

// EnvName returns the environment variable a key is read from.
func EnvName(key string) string {
	if env, ok := envBindings[key]; ok {
		return env
	}
	return strings.ToUpper(envKeyReplacer.Replace(key))
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "mysql":
		c := mysql.NewConfig()
		c.User = d.User
		c.Passwd = d.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		c.DBName = d.Name
		return c.FormatDSN()
	case "sqlite":
		return d.Path
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Name,
		}
		return u.String()
	}
}

// Redacted returns the DSN with the password masked, for logging.
func (d DatabaseConfig) Redacted() string {
	if d.Password == "" {
		return d.DSN()
	}
	masked := d
	masked.Password = "xxxxx"
	return masked.DSN()
}

// CacheEnabled reports whether the Redis response cache is configured.
func (r RedisConfig) CacheEnabled() bool {
	return r.Addr != ""
}
