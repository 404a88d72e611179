package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every process setting. File values are overridden by the environment.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	HTTP     HTTPConfig     `yaml:"http"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RealtimeConfig struct {
	Exchange      string        `yaml:"exchange"`
	SessionBuffer int           `yaml:"session_buffer"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

type LedgerConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	PurgeEvery   time.Duration `yaml:"purge_every"`
	PurgeEnabled bool          `yaml:"purge_enabled"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "tracker", Password: "tracker", Database: "fulfillment", MaxConns: 10},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", VHost: "/"},
		HTTP:     HTTPConfig{Port: 3000, ReadTimeout: 15 * time.Second, ShutdownTimeout: 5 * time.Second},
		Realtime: RealtimeConfig{Exchange: "realtime_topic", SessionBuffer: 64, Heartbeat: 25 * time.Second},
		Ledger:   LedgerConfig{TTL: 720 * time.Hour, PurgeEvery: time.Hour, PurgeEnabled: true},
		Log:      LogConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error when
// allowMissing is set, so env-only deployments work.
func LoadConfig(path string, allowMissing bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && allowMissing:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = envInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)

	c.RabbitMQ.Host = getEnv("RABBITMQ_HOST", c.RabbitMQ.Host)
	c.RabbitMQ.Port = envInt("RABBITMQ_PORT", c.RabbitMQ.Port)
	c.RabbitMQ.User = getEnv("RABBITMQ_USER", c.RabbitMQ.User)
	c.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", c.RabbitMQ.Password)
	c.RabbitMQ.VHost = getEnv("RABBITMQ_VHOST", c.RabbitMQ.VHost)

	c.HTTP.Port = envInt("HTTP_PORT", c.HTTP.Port)
	c.Ledger.TTL = envDuration("LEDGER_TTL", c.Ledger.TTL)
	c.Ledger.PurgeEnabled = envBool("LEDGER_PURGE_ENABLED", c.Ledger.PurgeEnabled)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) Validate() error {
	switch {
	case c.Database.Host == "" || c.Database.Database == "":
		return errors.New("invalid config: database host and name are required")
	case c.RabbitMQ.Host == "":
		return errors.New("invalid config: rabbitmq host is required")
	case c.HTTP.Port <= 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("invalid config: http port %d out of range", c.HTTP.Port)
	case c.Realtime.Exchange == "":
		return errors.New("invalid config: realtime exchange is required")
	case c.Realtime.SessionBuffer <= 0:
		return errors.New("invalid config: realtime session_buffer must be positive")
	case c.Ledger.PurgeEnabled && (c.Ledger.TTL <= 0 || c.Ledger.PurgeEvery <= 0):
		return errors.New("invalid config: ledger ttl and purge_every must be positive")
	}
	return nil
}

// DSN is the Postgres connection string for pgx and gorm.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Database,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// URL is the AMQP connection string.
func (r RabbitMQConfig) URL() string {
	vhost := r.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		url.PathEscape(r.User), url.PathEscape(r.Password), r.Host, r.Port, url.PathEscape(vhost))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	}
	return fallback
}
