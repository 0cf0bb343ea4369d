package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// State stores accepted by navigation.stateStore.
const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
	StateStoreSQLite = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Challenge struct {
		TTL string `yaml:"ttl"`
	} `yaml:"challenge"`
	Navigation struct {
		StateStore           string `yaml:"stateStore"`
		SQLitePath           string `yaml:"sqlitePath"`
		TickInterval         string `yaml:"tickInterval"`
		PauseAfterSubmission bool   `yaml:"pauseAfterSubmission"`
		AutoAdvance          bool   `yaml:"autoAdvance"`
	} `yaml:"navigation"`
	Admin struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"admin"`
}

// Load reads YAML config from path, then applies .env and environment overrides.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Postgres.URL, "POSTGRES_URL")
	setString(&c.Navigation.StateStore, "STATE_STORE")
	setString(&c.Navigation.SQLitePath, "SQLITE_PATH")
	setString(&c.Admin.Timezone, "ADMIN_TIMEZONE")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Navigation.StateStore == "" {
		c.Navigation.StateStore = StateStoreMemory
	}
	if c.Navigation.TickInterval == "" {
		c.Navigation.TickInterval = "1s"
	}
	if c.Admin.Timezone == "" {
		c.Admin.Timezone = "UTC"
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Navigation.StateStore {
	case StateStoreMemory:
	case StateStoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("navigation.stateStore redis requires redis.addr")
		}
	case StateStoreSQLite:
		if c.Navigation.SQLitePath == "" {
			return errors.New("navigation.stateStore sqlite requires navigation.sqlitePath")
		}
	default:
		return fmt.Errorf("unknown navigation.stateStore %q", c.Navigation.StateStore)
	}

	if c.Navigation.TickInterval != "" {
		d, err := time.ParseDuration(c.Navigation.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid navigation.tickInterval: %w", err)
		}
		if d <= 0 {
			return errors.New("navigation.tickInterval must be positive")
		}
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid admin.timezone: %w", err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Location resolves admin.timezone, defaulting to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Admin.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Admin.Timezone)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
