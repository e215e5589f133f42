package bridge

import (
	"os"
	"strconv"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string `toml:"addr"`     // default "localhost:6379"
	Password string `toml:"password"` // default ""
	DB       int    `toml:"db"`       // default 0
	Prefix   string `toml:"prefix"`   // channel prefix, default "jobfeed:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "jobfeed:",
	}
}

// Channel is the Redis pub/sub channel all instances share.
func (c *RedisConfig) Channel() string {
	return c.Prefix + "events"
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("JOBFEED_REDIS_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}
