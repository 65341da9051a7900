package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// Config holds all environment configuration
type Config struct {
	Port                int
	Env                 string
	LogLevel            string
	RequestTimeout      time.Duration
	StoreBackend        string
	DatabaseURL         string
	DBConnectionTimeout time.Duration
	RedisAddr           string
	RedisKeyPrefix      string
	BadgerPath          string
}

// fileConfig mirrors Config in the optional TOML file. Durations are strings
// such as "5s".
type fileConfig struct {
	Environment string `toml:"environment"`
	Server      struct {
		Port           int    `toml:"port"`
		RequestTimeout string `toml:"request_timeout"`
	} `toml:"server"`
	Logging struct {
		Level string `toml:"level"`
	} `toml:"logging"`
	Store struct {
		Backend           string `toml:"backend"`
		DatabaseURL       string `toml:"database_url"`
		ConnectionTimeout string `toml:"connection_timeout"`
		RedisAddr         string `toml:"redis_addr"`
		RedisKeyPrefix    string `toml:"redis_key_prefix"`
		BadgerPath        string `toml:"badger_path"`
	} `toml:"store"`
}

// helper: read env var as int seconds → convert to duration. Go duration
// strings ("1500ms") are accepted too.
func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(name); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	if value, exists := os.LookupEnv(name); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultVal
}

func getEnv(name, defaultVal string) string {
	if value, exists := os.LookupEnv(name); exists {
		return value
	}
	return defaultVal
}

func defaults() *Config {
	return &Config{
		Port:                8080,
		Env:                 "development",
		LogLevel:            "info",
		RequestTimeout:      5 * time.Second,
		StoreBackend:        BackendPostgres,
		DBConnectionTimeout: 5 * time.Second,
		RedisKeyPrefix:      "monjobs",
	}
}

// LoadConfig reads CONFIG_FILE (if set) and then lets env vars override it.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBConnectionTimeout = getEnvAsDuration("DB_CONNECTION_TIMEOUT", cfg.DBConnectionTimeout)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", cfg.RedisKeyPrefix)
	cfg.BadgerPath = getEnv("BADGER_PATH", cfg.BadgerPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Env, fc.Environment)
	setString(&c.LogLevel, fc.Logging.Level)
	setString(&c.StoreBackend, fc.Store.Backend)
	setString(&c.DatabaseURL, fc.Store.DatabaseURL)
	setString(&c.RedisAddr, fc.Store.RedisAddr)
	setString(&c.RedisKeyPrefix, fc.Store.RedisKeyPrefix)
	setString(&c.BadgerPath, fc.Store.BadgerPath)
	if fc.Server.Port != 0 {
		c.Port = fc.Server.Port
	}
	if err := setDuration(&c.RequestTimeout, fc.Server.RequestTimeout); err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	if err := setDuration(&c.DBConnectionTimeout, fc.Store.ConnectionTimeout); err != nil {
		return fmt.Errorf("store.connection_timeout: %w", err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Validate checks the backend selection and its required settings.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid REQUEST_TIMEOUT: %s", c.RequestTimeout)
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required")
		}
	case BackendBadger:
		if c.BadgerPath == "" {
			return errors.New("BADGER_PATH is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q", c.StoreBackend)
	}
	return nil
}
