package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("default listen addr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.RateLimitRPM != 60 {
		t.Errorf("default rate limit = %d, want 60", cfg.RateLimitRPM)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("default job ttl = %v, want 1h", cfg.JobTTL)
	}
	if cfg.Store != "memory" {
		t.Errorf("default store = %q, want memory", cfg.Store)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"negative rate", func(c *Config) { c.RateLimitRPM = -1 }, true},
		{"rate disabled", func(c *Config) { c.RateLimitRPM = 0 }, false},
		{"zero resolve timeout", func(c *Config) { c.ResolveTimeout = 0 }, true},
		{"zero ttl", func(c *Config) { c.JobTTL = 0 }, true},
		{"zero max entries", func(c *Config) { c.JobMaxEntries = 0 }, true},
		{"unknown store", func(c *Config) { c.Store = "etcd" }, true},
		{"redis without url", func(c *Config) { c.Store = "redis" }, true},
		{"redis with url", func(c *Config) { c.Store = "redis"; c.RedisURL = "redis://localhost:6379/0" }, false},
		{"sqlite", func(c *Config) { c.Store = "SQLite" }, false},
		{"zero reconnect delay", func(c *Config) { c.ReconnectDelayMax = 0 }, true},
		{"empty bitrate", func(c *Config) { c.AudioBitrate = "" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"valid debug level", func(c *Config) { c.LogLevel = "DEBUG" }, false},
		{"invalid log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"json log format", func(c *Config) { c.LogFormat = "json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// clearEnv unsets every variable Load looks at for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "RATE_LIMIT_RPM", "RESOLVE_TIMEOUT", "JOB_TTL", "JOB_MAX_ENTRIES",
		"STORE", "REDIS_URL", "SQLITE_PATH", "FFMPEG_PATH", "YTDLP_PATH",
		"RECONNECT_DELAY_MAX", "AUDIO_BITRATE", "LOG_LEVEL", "LOG_FORMAT", "DEBUG",
	} {
		for _, name := range []string{k, envVarPrefix + "_" + k} {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoadFromTOML(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	content := `
listen_addr = "127.0.0.1:9000"
rate_limit_rpm = 120
job_ttl = "30m"
store = "sqlite"
sqlite_path = "/var/lib/getbox/jobs.db"
audio_bitrate = "128k"
`
	dir := filepath.Join(tmpDir, "getbox")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.RateLimitRPM != 120 {
		t.Errorf("rate limit = %d, want 120", cfg.RateLimitRPM)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("job ttl = %v, want 30m", cfg.JobTTL)
	}
	if cfg.Store != "sqlite" {
		t.Errorf("store = %q, want sqlite", cfg.Store)
	}
	if cfg.AudioBitrate != "128k" {
		t.Errorf("audio bitrate = %q, want 128k", cfg.AudioBitrate)
	}
	// untouched keys keep their defaults
	if cfg.JobMaxEntries != 2000 {
		t.Errorf("job max entries = %d, want 2000", cfg.JobMaxEntries)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("RATE_LIMIT_RPM", "10")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg")
	t.Setenv("GETBOX_YTDLP_PATH", "/opt/yt-dlp")
	t.Setenv("GETBOX_JOB_TTL", "5m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RateLimitRPM != 10 {
		t.Errorf("rate limit = %d, want 10", cfg.RateLimitRPM)
	}
	if cfg.FFmpegPath != "/opt/ffmpeg" {
		t.Errorf("ffmpeg path = %q", cfg.FFmpegPath)
	}
	if cfg.YtDlpPath != "/opt/yt-dlp" {
		t.Errorf("yt-dlp path = %q", cfg.YtDlpPath)
	}
	if cfg.JobTTL != 5*time.Minute {
		t.Errorf("job ttl = %v, want 5m", cfg.JobTTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() should not error on missing file: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("missing file should return defaults, got listen addr = %q", cfg.ListenAddr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() should error on a missing explicit file")
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte(`store = "etcd"`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject an unknown store")
	}

	if err := os.WriteFile(path, []byte(`listen_addr = `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject malformed TOML")
	}
}

func TestExpandSQLitePath(t *testing.T) {
	cfg := Default()
	cfg.SQLitePath = "/tmp/getbox/jobs.db"
	p, err := cfg.ExpandSQLitePath()
	if err != nil {
		t.Fatalf("ExpandSQLitePath() error: %v", err)
	}
	if p != "/tmp/getbox/jobs.db" {
		t.Errorf("got %q, want /tmp/getbox/jobs.db", p)
	}

	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	cfg.SQLitePath = ""
	p, err = cfg.ExpandSQLitePath()
	if err != nil {
		t.Fatalf("ExpandSQLitePath() error: %v", err)
	}
	if want := filepath.Join(data, "getbox", "jobs.db"); p != want {
		t.Errorf("got %q, want %q", p, want)
	}
}
