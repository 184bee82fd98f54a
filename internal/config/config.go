package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	EnvConfigPath = "CASHMATE_CONFIG"
)

type Config struct {
	APIURL      string        `yaml:"api_url" env:"CASHMATE_API_URL" env-description:"base URL of the CashMate backend"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"CASHMATE_HTTP_TIMEOUT" env-default:"30s"`
	LogLevel    string        `yaml:"log_level" env:"CASHMATE_LOG_LEVEL" env-default:"info"`
	Store       StoreConfig   `yaml:"store"`
	Activation  Activation    `yaml:"activation"`
}

type StoreConfig struct {
	Kind  string      `yaml:"kind" env:"CASHMATE_STORE" env-default:"sqlite" env-description:"sqlite, redis or memory"`
	Path  string      `yaml:"path" env:"CASHMATE_STORE_PATH"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"CASHMATE_REDIS_ADDR" env-description:"host:port, required for the redis store"`
	Password string `yaml:"password" env:"CASHMATE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"CASHMATE_REDIS_DB" env-default:"0"`
	Prefix   string `yaml:"prefix" env:"CASHMATE_REDIS_PREFIX" env-default:"cashmate"`
}

type Activation struct {
	ResendCooldown int `yaml:"resend_cooldown" env:"CASHMATE_RESEND_COOLDOWN" env-default:"60"`
}

// Load reads the optional .env file, then the YAML file at path (if any),
// then the environment. Environment values win over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("couldn't load .env", slog.String("error", err.Error()))
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.Store.Kind == StoreSQLite && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("CASHMATE_API_URL is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CASHMATE_API_URL %q is not an absolute URL", c.APIURL)
	}

	switch c.Store.Kind {
	case StoreSQLite:
		if c.Store.Path == "" {
			return errors.New("CASHMATE_STORE_PATH is required for the sqlite store")
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("CASHMATE_REDIS_ADDR is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q: want sqlite, redis or memory", c.Store.Kind)
	}

	if c.Activation.ResendCooldown < 0 {
		return errors.New("CASHMATE_RESEND_COOLDOWN must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a CASHMATE_LOG_LEVEL value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// Usage describes every environment variable.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}

// DefaultStorePath is the credential database under the user config dir.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "cashmate", "credentials.db")
}
