// Package config handles configuration loading and validation.
// Values come from defaults, then a TOML file, then the environment; the
// command line applies its own overrides on top.
// TOML is parsed as data only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

const (
	appName      = "getbox"
	envVarPrefix = "GETBOX"
)

// Config holds all application configuration.
//
// Environment variables use the GETBOX_ prefix; the bare names listed in the
// envconfig tags are accepted as well.
type Config struct {
	ListenAddr     string        `toml:"listen_addr"     envconfig:"LISTEN_ADDR"`
	RateLimitRPM   int           `toml:"rate_limit_rpm"  envconfig:"RATE_LIMIT_RPM"`
	ResolveTimeout time.Duration `toml:"resolve_timeout" envconfig:"RESOLVE_TIMEOUT"`

	JobTTL        time.Duration `toml:"job_ttl"         envconfig:"JOB_TTL"`
	JobMaxEntries int           `toml:"job_max_entries" envconfig:"JOB_MAX_ENTRIES"`
	Store         string        `toml:"store"           envconfig:"STORE"`
	RedisURL      string        `toml:"redis_url"       envconfig:"REDIS_URL"`
	SQLitePath    string        `toml:"sqlite_path"     envconfig:"SQLITE_PATH"`

	FFmpegPath        string `toml:"ffmpeg_path"         envconfig:"FFMPEG_PATH"`
	YtDlpPath         string `toml:"ytdlp_path"          envconfig:"YTDLP_PATH"`
	ReconnectDelayMax int    `toml:"reconnect_delay_max" envconfig:"RECONNECT_DELAY_MAX"`
	AudioBitrate      string `toml:"audio_bitrate"       envconfig:"AUDIO_BITRATE"`

	LogLevel  string `toml:"log_level"  envconfig:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" envconfig:"LOG_FORMAT"`
	Debug     bool   `toml:"debug"      envconfig:"DEBUG"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		RateLimitRPM:      60,
		ResolveTimeout:    20 * time.Second,
		JobTTL:            time.Hour,
		JobMaxEntries:     2000,
		Store:             "memory",
		ReconnectDelayMax: 5,
		AudioBitrate:      "192k",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigPath returns the path to the default config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (the default location when empty),
// applies environment overrides and validates the result.
// A missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, cfg); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("rate_limit_rpm must be >= 0, got %d", c.RateLimitRPM)
	}
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("resolve_timeout must be positive")
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("job_ttl must be positive")
	}
	if c.JobMaxEntries <= 0 {
		return fmt.Errorf("job_max_entries must be positive, got %d", c.JobMaxEntries)
	}

	switch strings.ToLower(c.Store) {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis store")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported store %q (valid: memory, redis, sqlite)", c.Store)
	}

	if c.ReconnectDelayMax <= 0 {
		return fmt.Errorf("reconnect_delay_max must be positive, got %d", c.ReconnectDelayMax)
	}
	if c.AudioBitrate == "" {
		return fmt.Errorf("audio_bitrate cannot be empty")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("unsupported log_level %q (valid: trace, debug, info, warn, error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}

// ExpandSQLitePath resolves ~ in the sqlite path. An empty path means
// jobs.db in the data directory.
func (c *Config) ExpandSQLitePath() (string, error) {
	p := c.SQLitePath
	switch {
	case p == "":
		return DataPath("jobs.db")
	case p == ":memory:":
		return p, nil
	case strings.HasPrefix(p, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		p = filepath.Join(home, p[2:])
	}
	return filepath.Abs(p)
}

// DataPath returns name inside the XDG data directory.
func DataPath(name string) (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, appName, name), nil
}
