package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cacheRoot := t.TempDir()
	configRoot := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheRoot)
	t.Setenv("XDG_CONFIG_HOME", configRoot)
	for _, key := range []string{
		"NOTEBOOKD_DAEMON_DIR", "NOTEBOOKD_CONFIG_DIR", "NOTEBOOKD_DOCS_DIR",
		"NOTEBOOKD_ENV_CACHE_DIR", "NOTEBOOKD_RUNTIME_DIR", "NOTEBOOKD_UV_POOL_TARGET",
		"NOTEBOOKD_CONDA_POOL_TARGET", "NOTEBOOKD_MAX_ENV_AGE", "NOTEBOOKD_BLOB_INLINE_THRESHOLD",
		"NOTEBOOKD_UV_PATH", "NOTEBOOKD_CONDA_PATH", "NOTEBOOKD_DEBUG_CONSOLE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if cfg.UvTarget != 2 {
		t.Fatalf("expected default uv target 2, got %d", cfg.UvTarget)
	}
	if cfg.CondaTarget != 1 {
		t.Fatalf("expected default conda target 1, got %d", cfg.CondaTarget)
	}
	if cfg.MaxEnvAge != 48*time.Hour {
		t.Fatalf("expected default max env age 48h, got %v", cfg.MaxEnvAge)
	}
	if cfg.BlobInlineThreshold != 4*1024 {
		t.Fatalf("expected default inline threshold 4KiB, got %d", cfg.BlobInlineThreshold)
	}
	if cfg.DebugConsole {
		t.Fatal("expected debug console disabled by default")
	}
	for _, dir := range []string{cfg.DaemonDir, cfg.ConfigDir, cfg.DocsDir, cfg.EnvCacheDir, cfg.RuntimeDir} {
		if _, statErr := os.Stat(dir); statErr != nil {
			t.Fatalf("expected %s to be created: %v", dir, statErr)
		}
	}
}

func TestFromEnvOverrides(t *testing.T) {
	daemonDir := filepath.Join(t.TempDir(), "daemon")
	t.Setenv("NOTEBOOKD_DAEMON_DIR", daemonDir)
	t.Setenv("NOTEBOOKD_UV_POOL_TARGET", "5")
	t.Setenv("NOTEBOOKD_MAX_ENV_AGE", "2h")
	t.Setenv("NOTEBOOKD_BLOB_INLINE_THRESHOLD", "8KiB")
	t.Setenv("NOTEBOOKD_DEBUG_CONSOLE", "1")
	t.Setenv("NOTEBOOKD_CONFIG_DIR", filepath.Join(t.TempDir(), "config"))
	t.Setenv("NOTEBOOKD_DOCS_DIR", filepath.Join(t.TempDir(), "docs"))
	t.Setenv("NOTEBOOKD_ENV_CACHE_DIR", filepath.Join(t.TempDir(), "envs"))
	t.Setenv("NOTEBOOKD_RUNTIME_DIR", filepath.Join(t.TempDir(), "runtime"))

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DaemonDir != daemonDir {
		t.Fatalf("got daemon dir %q, want %q", cfg.DaemonDir, daemonDir)
	}
	if cfg.UvTarget != 5 {
		t.Fatalf("expected uv target 5, got %d", cfg.UvTarget)
	}
	if cfg.MaxEnvAge != 2*time.Hour {
		t.Fatalf("expected max env age 2h, got %v", cfg.MaxEnvAge)
	}
	if cfg.BlobInlineThreshold != 8*1024 {
		t.Fatalf("expected inline threshold 8KiB, got %d", cfg.BlobInlineThreshold)
	}
	if !cfg.DebugConsole {
		t.Fatal("expected debug console enabled")
	}
}

func TestGetenvBytesFallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("NOTEBOOKD_TEST_BYTES", "not-a-size")
	if got := getenvBytes("NOTEBOOKD_TEST_BYTES", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
}

func TestGetenvDurationFallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("NOTEBOOKD_TEST_DURATION", "not-a-duration")
	if got := getenvDuration("NOTEBOOKD_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback 1m, got %v", got)
	}
}
