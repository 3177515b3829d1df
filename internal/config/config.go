package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/cloudbedlam/eatmem/internal/memory"
)

// Config holds the application configuration
type Config struct {
	ChunkSize     int    `mapstructure:"chunk_size"`     // bytes per allocation call
	HoldSeconds   int64  `mapstructure:"hold_seconds"`   // hold used when no duration argument is given
	Allocator     string `mapstructure:"allocator"`      // "mmap", "heap" or "" for the platform default
	LogLevel      string `mapstructure:"log_level"`      // debug, info, warn, error
	StrictExit    bool   `mapstructure:"strict_exit"`    // non-zero exit on invalid size or allocation failure
	ProgressEvery int64  `mapstructure:"progress_every"` // acquisitions between progress reports
	AuditEnabled  bool   `mapstructure:"audit_enabled"`
	AuditLogFile  string `mapstructure:"audit_log_file"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetDefault("chunk_size", memory.DefaultChunkSize)
	viper.SetDefault("hold_seconds", 0)
	viper.SetDefault("allocator", "")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("strict_exit", false)
	viper.SetDefault("progress_every", 16384) // 16 MiB at the default chunk size
	viper.SetDefault("audit_enabled", false)
	viper.SetDefault("audit_log_file", filepath.Join(getHomeDir(), ".eatmem", "audit.log"))

	configDir := filepath.Join(getHomeDir(), ".eatmem")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	_ = viper.ReadInConfig() // nolint:errcheck // config file is optional

	viper.SetEnvPrefix("EATMEM")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.AuditLogFile = expandPath(cfg.AuditLogFile)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return &cfg, nil
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.HoldSeconds < 0 {
		return fmt.Errorf("hold_seconds cannot be negative, got %d", c.HoldSeconds)
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every cannot be negative, got %d", c.ProgressEvery)
	}

	switch c.Allocator {
	case "", memory.AllocatorHeap, memory.AllocatorMmap:
	default:
		return fmt.Errorf("unknown allocator %q (expected %q or %q)", c.Allocator, memory.AllocatorHeap, memory.AllocatorMmap)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	if c.AuditEnabled && c.AuditLogFile == "" {
		return fmt.Errorf("audit_enabled requires audit_log_file")
	}

	return nil
}

// getHomeDir returns the user's home directory
func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home := getHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
