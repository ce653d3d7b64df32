package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"chartsmith/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if cfg.Workflow.StaleLockSeconds != 300 {
		t.Fatalf("unexpected stale lock default: %d", cfg.Workflow.StaleLockSeconds)
	}
	if cfg.Tools.FFmpeg != "ffmpeg" {
		t.Fatalf("unexpected ffmpeg default: %q", cfg.Tools.FFmpeg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config, resolved %q", resolved)
	}
	if cfg.Workflow.QueuePollInterval != 5 {
		t.Fatalf("default poll interval not applied: %d", cfg.Workflow.QueuePollInterval)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"

[workflow]
queue_poll_interval = 2
stale_lock_seconds = 60

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Workflow.QueuePollInterval != 2 {
		t.Fatalf("poll interval override lost: %d", cfg.Workflow.QueuePollInterval)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format not normalized: %q", cfg.Logging.Format)
	}
	if !filepath.IsAbs(cfg.Paths.StagingDir) {
		t.Fatalf("staging dir not absolute: %q", cfg.Paths.StagingDir)
	}
}

func TestValidateRejectsShortStaleLock(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.QueuePollInterval = 30
	cfg.Workflow.StaleLockSeconds = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for stale lock shorter than poll interval")
	}
}
