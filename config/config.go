package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the jobfeed configuration file.
type Config struct {
	Server ServerConfig `toml:"server"`
	Socket SocketConfig `toml:"socket"`
	Client ClientConfig `toml:"client"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns a Config with every section at its defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Socket: *DefaultConfig(),
		Client: DefaultClientConfig(),
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides settings from JOBFEED_* environment variables.
// Unparseable values are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("JOBFEED_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("JOBFEED_URL"); v != "" {
		c.Client.URL = v
	}
	if v := os.Getenv("JOBFEED_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v, ok := envInt("JOBFEED_RECONNECT_DELAY_MS"); ok {
		c.Client.ReconnectDelayMs = v
	}
	if v, ok := envInt("JOBFEED_MAX_RECONNECT_ATTEMPTS"); ok {
		c.Client.MaxReconnectAttempts = v
	}
	if v, ok := envInt("JOBFEED_REPLAY_TAIL"); ok {
		c.Socket.ReplayTail = v
	}
	if v, ok := envInt("JOBFEED_MAX_CONNECTIONS"); ok {
		c.Socket.MaxConnections = v
	}
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
