package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration for an arena server instance.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Realtime  RealtimeConfig  `json:"realtime"`
	Directory DirectoryConfig `json:"directory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// RedisConfig holds coordination store settings. With Enabled=false the
// server runs on an in-process store and cannot be scaled horizontally.
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	Cluster      bool          `json:"cluster"`
	ClusterNodes []string      `json:"cluster_nodes"`
}

// RealtimeConfig holds event-pipeline gating and connection bounds.
type RealtimeConfig struct {
	TurnWindow      time.Duration `json:"turn_window"`
	VoteTTL         time.Duration `json:"vote_ttl"`
	StoreTimeout    time.Duration `json:"store_timeout"`
	SendBuffer      int           `json:"send_buffer"`
	MaxMessageBytes int64         `json:"max_message_bytes"`
	WriteWait       time.Duration `json:"write_wait"`
	PongWait        time.Duration `json:"pong_wait"`
}

// DirectoryConfig selects the battle/agent data source. SeedFile takes
// precedence over BaseURL when set.
type DirectoryConfig struct {
	BaseURL  string        `json:"base_url"`
	Timeout  time.Duration `json:"timeout"`
	SeedFile string        `json:"seed_file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Redis: RedisConfig{
			Enabled:     false,
			Host:        "localhost",
			Port:        6379,
			PoolSize:    20,
			MaxRetries:  3,
			DialTimeout: 5 * time.Second,
		},
		Realtime: RealtimeConfig{
			TurnWindow:      10 * time.Second,
			VoteTTL:         24 * time.Hour,
			StoreTimeout:    3 * time.Second,
			SendBuffer:      256,
			MaxMessageBytes: 16 * 1024,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
		},
		Directory: DirectoryConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 5 * time.Second,
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Realtime.TurnWindow <= 0 {
		return fmt.Errorf("realtime.turn_window must be positive, got %s", c.Realtime.TurnWindow)
	}
	if c.Realtime.VoteTTL <= 0 {
		return fmt.Errorf("realtime.vote_ttl must be positive, got %s", c.Realtime.VoteTTL)
	}
	if c.Realtime.StoreTimeout <= 0 {
		return fmt.Errorf("realtime.store_timeout must be positive, got %s", c.Realtime.StoreTimeout)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive, got %d", c.Realtime.SendBuffer)
	}
	if c.Realtime.MaxMessageBytes <= 0 {
		return fmt.Errorf("realtime.max_message_bytes must be positive, got %d", c.Realtime.MaxMessageBytes)
	}
	if c.Redis.Enabled {
		if c.Redis.Cluster {
			if len(c.Redis.ClusterNodes) == 0 {
				return fmt.Errorf("redis.cluster_nodes is required when cluster=true")
			}
		} else {
			if c.Redis.Host == "" {
				return fmt.Errorf("redis.host is required when redis is enabled")
			}
			if c.Redis.Port <= 0 {
				return fmt.Errorf("redis.port must be positive, got %d", c.Redis.Port)
			}
		}
	}
	if c.Directory.SeedFile == "" && c.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url or directory.seed_file is required")
	}
	return nil
}

// LoadFile reads a JSON config file and merges it over defaults. Fields not
// specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}

	if raw.Redis.Enabled != nil {
		cfg.Redis.Enabled = *raw.Redis.Enabled
	}
	if raw.Redis.Host != "" {
		cfg.Redis.Host = raw.Redis.Host
	}
	if raw.Redis.Port > 0 {
		cfg.Redis.Port = raw.Redis.Port
	}
	if raw.Redis.Password != "" {
		cfg.Redis.Password = raw.Redis.Password
	}
	if raw.Redis.DB > 0 {
		cfg.Redis.DB = raw.Redis.DB
	}
	if raw.Redis.PoolSize > 0 {
		cfg.Redis.PoolSize = raw.Redis.PoolSize
	}
	if raw.Redis.MaxRetries > 0 {
		cfg.Redis.MaxRetries = raw.Redis.MaxRetries
	}
	if err := parseDuration(raw.Redis.DialTimeout, "redis.dial_timeout", &cfg.Redis.DialTimeout); err != nil {
		return cfg, err
	}
	if raw.Redis.Cluster != nil {
		cfg.Redis.Cluster = *raw.Redis.Cluster
	}
	if len(raw.Redis.ClusterNodes) > 0 {
		cfg.Redis.ClusterNodes = raw.Redis.ClusterNodes
	}

	if err := parseDuration(raw.Realtime.TurnWindow, "realtime.turn_window", &cfg.Realtime.TurnWindow); err != nil {
		return cfg, err
	}
	if err := parseDuration(raw.Realtime.VoteTTL, "realtime.vote_ttl", &cfg.Realtime.VoteTTL); err != nil {
		return cfg, err
	}
	if err := parseDuration(raw.Realtime.StoreTimeout, "realtime.store_timeout", &cfg.Realtime.StoreTimeout); err != nil {
		return cfg, err
	}
	if raw.Realtime.SendBuffer > 0 {
		cfg.Realtime.SendBuffer = raw.Realtime.SendBuffer
	}
	if raw.Realtime.MaxMessageBytes > 0 {
		cfg.Realtime.MaxMessageBytes = raw.Realtime.MaxMessageBytes
	}
	if err := parseDuration(raw.Realtime.WriteWait, "realtime.write_wait", &cfg.Realtime.WriteWait); err != nil {
		return cfg, err
	}
	if err := parseDuration(raw.Realtime.PongWait, "realtime.pong_wait", &cfg.Realtime.PongWait); err != nil {
		return cfg, err
	}

	if raw.Directory.BaseURL != "" {
		cfg.Directory.BaseURL = raw.Directory.BaseURL
	}
	if err := parseDuration(raw.Directory.Timeout, "directory.timeout", &cfg.Directory.Timeout); err != nil {
		return cfg, err
	}
	if raw.Directory.SeedFile != "" {
		cfg.Directory.SeedFile = raw.Directory.SeedFile
	}

	return cfg, nil
}

func parseDuration(s, field string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// rawConfig is the JSON-friendly representation with string durations.
type rawConfig struct {
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Redis struct {
		Enabled      *bool    `json:"enabled"`
		Host         string   `json:"host"`
		Port         int      `json:"port"`
		Password     string   `json:"password"`
		DB           int      `json:"db"`
		PoolSize     int      `json:"pool_size"`
		MaxRetries   int      `json:"max_retries"`
		DialTimeout  string   `json:"dial_timeout"`
		Cluster      *bool    `json:"cluster"`
		ClusterNodes []string `json:"cluster_nodes"`
	} `json:"redis"`
	Realtime struct {
		TurnWindow      string `json:"turn_window"`
		VoteTTL         string `json:"vote_ttl"`
		StoreTimeout    string `json:"store_timeout"`
		SendBuffer      int    `json:"send_buffer"`
		MaxMessageBytes int64  `json:"max_message_bytes"`
		WriteWait       string `json:"write_wait"`
		PongWait        string `json:"pong_wait"`
	} `json:"realtime"`
	Directory struct {
		BaseURL  string `json:"base_url"`
		Timeout  string `json:"timeout"`
		SeedFile string `json:"seed_file"`
	} `json:"directory"`
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `{
  "server": {
    "addr": ":8080"
  },
  "redis": {
    "enabled": true,
    "host": "localhost",
    "port": 6379
  },
  "realtime": {
    "turn_window": "10s",
    "vote_ttl": "24h"
  },
  "directory": {
    "base_url": "http://localhost:3000"
  }
}
`
	return os.WriteFile(path, []byte(example), 0o644)
}
