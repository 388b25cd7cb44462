// Package config loads process configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration. Every collaborator is optional: an empty
// DSN, URL or bucket selects the in-memory implementation.
type Config struct {
	Server    Server          `envPrefix:"SAFETY_"`
	Log       LogConfig       `envPrefix:"SAFETY_LOG_"`
	Database  DatabaseConfig  `envPrefix:"SAFETY_DB_"`
	Redis     RedisConfig     `envPrefix:"SAFETY_REDIS_"`
	S3        S3Config        `envPrefix:"SAFETY_S3_"`
	Directory DirectoryConfig `envPrefix:"SAFETY_DIRECTORY_"`
	Kafka     KafkaConfig     `envPrefix:"SAFETY_KAFKA_"`
	Auth      AuthConfig      `envPrefix:"SAFETY_AUTH_"`
	RateLimit RateLimitConfig `envPrefix:"SAFETY_RATELIMIT_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type DatabaseConfig struct {
	DSN          string        `env:"DSN"`
	Driver       string        `env:"DRIVER" envDefault:"postgres"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	// StatsTTL bounds how long registry aggregates stay cached per refresh key.
	StatsTTL time.Duration `env:"STATS_TTL" envDefault:"5m"`
}

type S3Config struct {
	Bucket       string        `env:"BUCKET"`
	Region       string        `env:"REGION" envDefault:"us-east-1"`
	Endpoint     string        `env:"ENDPOINT"`
	AccessKey    string        `env:"ACCESS_KEY"`
	SecretKey    string        `env:"SECRET_KEY"`
	UsePathStyle bool          `env:"USE_PATH_STYLE" envDefault:"false"`
	PresignTTL   time.Duration `env:"PRESIGN_TTL" envDefault:"15m"`
}

type DirectoryConfig struct {
	BaseURL          string        `env:"BASE_URL"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"5s"`
	RetryCount       int           `env:"RETRY_COUNT" envDefault:"2"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"safety-audit-events"`
}

type AuthConfig struct {
	SigningKey string `env:"SIGNING_KEY"`
	Issuer     string `env:"ISSUER"`
	Audience   string `env:"AUDIENCE"`
	// Disabled skips bearer token checks; requests must then carry X-Owner-ID.
	Disabled bool `env:"DISABLED" envDefault:"false"`
}

// RateLimitConfig sets per-owner budgets. Zero disables a class. Windows are
// shared in Redis when it is configured.
type RateLimitConfig struct {
	Disabled bool          `env:"DISABLED" envDefault:"false"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
	Reads    int           `env:"READS" envDefault:"600"`
	Writes   int           `env:"WRITES" envDefault:"120"`
	Uploads  int           `env:"UPLOADS" envDefault:"20"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Database.DSN != "" && c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if !c.Auth.Disabled && c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth signing key is required unless auth is disabled"))
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		errs = append(errs, errors.New("s3 access key and secret key must be set together"))
	}
	if !c.RateLimit.Disabled && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	return errors.Join(errs...)
}
