// Package config loads runtime settings: defaults, then an optional YAML
// file, then environment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"log"`

	// NativeAggregation lets the store rank leaderboards itself when it can.
	NativeAggregation bool `yaml:"native_aggregation"`
	// WorkerPoolSize bounds concurrent store reads.
	WorkerPoolSize int `yaml:"worker_pool_size"`
	// WarmSchedule is a cron spec for refreshing estimators; empty disables it.
	WarmSchedule string `yaml:"warm_schedule"`
	// CachePrefix namespaces keys in Redis.
	CachePrefix string `yaml:"cache_prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Port = "8080"
	c.Log.Level = "info"
	c.Log.Encoding = "json"
	c.NativeAggregation = true
	c.WorkerPoolSize = 16
	c.WarmSchedule = "@every 5m"
	c.CachePrefix = "panda:"
	return c
}

// Load builds the configuration. path may be empty; CONFIG_FILE is used then.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if c.WorkerPoolSize < 1 {
		return Config{}, fmt.Errorf("config: worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_ENCODING", &c.Log.Encoding)
	str("CACHE_PREFIX", &c.CachePrefix)
	if v, ok := lookup("WARM_SCHEDULE"); ok {
		c.WarmSchedule = v
	}

	if v, ok := lookup("NATIVE_AGGREGATION"); ok && v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("config: NATIVE_AGGREGATION: %w", err)
		}
		c.NativeAggregation = b
	}
	if v, ok := lookup("WORKER_POOL_SIZE"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("config: WORKER_POOL_SIZE: %w", err)
		}
		c.WorkerPoolSize = n
	}
	return nil
}
