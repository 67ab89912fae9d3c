package config

import (
	"errors"
	"time"
)

// DefaultJWTSecret is the placeholder secret written to new config files.
const DefaultJWTSecret = "change-me"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxContentLength   int           `mapstructure:"max_content_length" yaml:"max_content_length"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// RedisConfig configures the cross-node event relay.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	Channel   string `mapstructure:"channel" yaml:"channel"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		MaxMessageBytes:    64 << 10,
		MaxContentLength:   4000,
		SendBuffer:         64,
		StoreTimeout:       5 * time.Second,
		RateLimitPerMinute: 0,
		JWTSecret:          DefaultJWTSecret,
		JWTIssuer:          "marketchat",
		JWTAudience:        "marketchat",
		Store: StoreConfig{
			Driver:        DriverSQLite,
			SQLitePath:    "marketchat.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "marketchat",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Channel:   "marketchat:events",
			KeyPrefix: "marketchat",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return errors.New("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return errors.New("store.driver must be sqlite or mongo")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
