package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `databaseURL: postgres://localhost:5432/libreshelf
minioEndpoint: localhost:9000
minioAccessKey: access
minioSecretKey: secret
minioBucket: libreshelf
redisAddr: localhost:6379
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PreviewStream != "previews" {
		t.Fatalf("previewStream = %q, want previews", cfg.PreviewStream)
	}
	if cfg.PreviewGroup != "preview-workers" {
		t.Fatalf("previewGroup = %q, want preview-workers", cfg.PreviewGroup)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("workerConcurrency = %d, want 2", cfg.WorkerConcurrency)
	}
}

func TestLoadParsesExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+`previewStream: jobs
workerConcurrency: 8
rasterizer: /usr/local/bin/pdftoppm
rasterizerTimeoutSec: 45
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PreviewStream != "jobs" {
		t.Fatalf("previewStream = %q, want jobs", cfg.PreviewStream)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Fatalf("workerConcurrency = %d, want 8", cfg.WorkerConcurrency)
	}
	if cfg.RasterizerTimeout() != 45*time.Second {
		t.Fatalf("rasterizer timeout = %s, want 45s", cfg.RasterizerTimeout())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db.internal:5432/prod")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("PREVIEW_WORKER_CONCURRENCY", "6")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db.internal:5432/prod" {
		t.Fatalf("databaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "redis.internal:6379" {
		t.Fatalf("redisAddr = %q", cfg.RedisAddr)
	}
	if cfg.WorkerConcurrency != 6 {
		t.Fatalf("workerConcurrency = %d, want 6", cfg.WorkerConcurrency)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	trimmed := strings.Replace(minimalYAML, "minioBucket: libreshelf\n", "", 1)
	if _, err := Load(writeConfig(t, trimmed)); err == nil || !strings.Contains(err.Error(), "minioBucket") {
		t.Fatalf("expected minioBucket error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
