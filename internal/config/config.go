// Package config carries the externally injectable settings of the export
// core: the local-backend size threshold, the remote worker endpoint and
// the process-level knobs around them. Values come from an optional TOML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	// DefaultLocalSizeLimit bounds the memory footprint of the in-process
	// backend. Jobs above it are dispatched to the remote worker.
	DefaultLocalSizeLimit = 20 * 1024 * 1024 // 20 MiB

	DefaultRemoteURL  = "http://127.0.0.1:8000/process"
	DefaultListenAddr = ":8787"
	DefaultLogLevel   = "info"
	DefaultFFmpegBin  = "ffmpeg"

	EnvRemoteURL      = "VIDCAMP_REMOTE_URL"
	EnvLocalSizeLimit = "VIDCAMP_LOCAL_SIZE_LIMIT"
	EnvListenAddr     = "VIDCAMP_LISTEN_ADDR"
	EnvLogLevel       = "VIDCAMP_LOG_LEVEL"
	EnvFFmpegBin      = "VIDCAMP_FFMPEG_BIN"
)

// Config is the resolved configuration.
type Config struct {
	LocalSizeLimit int64  `toml:"local_size_limit"`
	RemoteURL      string `toml:"remote_url"`
	ListenAddr     string `toml:"listen_addr"`
	LogLevel       string `toml:"log_level"`
	FFmpegBin      string `toml:"ffmpeg_bin"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LocalSizeLimit: DefaultLocalSizeLimit,
		RemoteURL:      DefaultRemoteURL,
		ListenAddr:     DefaultListenAddr,
		LogLevel:       DefaultLogLevel,
		FFmpegBin:      DefaultFFmpegBin,
	}
}

// Load reads the TOML file at path when it is non-empty, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRemoteURL); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvFFmpegBin); v != "" {
		cfg.FFmpegBin = v
	}
	if v := os.Getenv(EnvLocalSizeLimit); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.LocalSizeLimit = n
		}
	}
}

// Validate rejects configurations the exporter cannot run with.
func (c *Config) Validate() error {
	if c.LocalSizeLimit <= 0 {
		return fmt.Errorf("local_size_limit must be positive, got %d", c.LocalSizeLimit)
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url is required")
	}
	return nil
}
