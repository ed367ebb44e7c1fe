/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config populates DaemonConfig (spec.md §3) from NOTEBOOKD_*
// environment variables (SPEC_FULL.md §4.L).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
)

// ReplenishInterval is the fixed pool maintenance-loop tick named in
// spec.md §4.F; unlike the other knobs below it is not tunable via
// environment, since the backoff schedule in internal/pool is itself
// a literal table keyed to this cadence.
const ReplenishInterval = 30 * time.Second

// DaemonConfig is the top-level configuration surface of spec.md §3,
// resolved once at startup.
type DaemonConfig struct {
	// DaemonDir holds daemon.json, daemon.lock and the socket itself.
	DaemonDir string
	// ConfigDir holds settings.json / settings.schema.json.
	ConfigDir string
	// DocsDir holds the per-notebook Automerge binaries.
	DocsDir string
	// EnvCacheDir holds pooled interpreter environment roots.
	EnvCacheDir string
	// RuntimeDir holds kernel connection files.
	RuntimeDir string

	// UvTarget/CondaTarget are the pool sizes maintained by the
	// warming loop (spec.md §4.F).
	UvTarget    int
	CondaTarget int
	// MaxEnvAge evicts a pooled environment once it has sat idle this
	// long (SPEC_FULL.md §4.L: NOTEBOOKD_MAX_ENV_AGE, default 48h).
	MaxEnvAge time.Duration

	// BlobInlineThreshold holds the parsed NOTEBOOKD_BLOB_INLINE_THRESHOLD
	// value (SPEC_FULL.md §4.L, default 4KiB). No caller reads it: the
	// output manifest builder is always constructed with
	// outputs.DefaultInlineThreshold.
	BlobInlineThreshold int64

	// UvPath/CondaPath override the resolved-via-PATH binary names.
	UvPath    string
	CondaPath string

	// DebugConsole enables the chzyer/readline REPL on stdin
	// (SPEC_FULL.md §4.J/§4.M); whether stdin is a terminal is not checked.
	DebugConsole bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

func getenvBytes(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := units.RAMInBytes(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// FromEnv resolves a DaemonConfig from NOTEBOOKD_* variables, falling
// back to per-OS default directories rooted at the user cache/config
// dirs when unset.
func FromEnv() (DaemonConfig, error) {
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("config: resolve user cache dir: %w", err)
	}
	configRoot, err := os.UserConfigDir()
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("config: resolve user config dir: %w", err)
	}

	defaultDaemonDir := filepath.Join(cacheRoot, "notebookd")
	defaultDocsDir := filepath.Join(cacheRoot, "notebookd", "notebooks")
	defaultEnvCache := filepath.Join(cacheRoot, "notebookd", "envs")
	defaultRuntimeDir := filepath.Join(cacheRoot, "notebookd", "runtime")
	defaultConfigDir := filepath.Join(configRoot, "notebookd")

	cfg := DaemonConfig{
		DaemonDir:           getenv("NOTEBOOKD_DAEMON_DIR", defaultDaemonDir),
		ConfigDir:           getenv("NOTEBOOKD_CONFIG_DIR", defaultConfigDir),
		DocsDir:             getenv("NOTEBOOKD_DOCS_DIR", defaultDocsDir),
		EnvCacheDir:         getenv("NOTEBOOKD_ENV_CACHE_DIR", defaultEnvCache),
		RuntimeDir:          getenv("NOTEBOOKD_RUNTIME_DIR", defaultRuntimeDir),
		UvTarget:            getenvInt("NOTEBOOKD_UV_POOL_TARGET", 2),
		CondaTarget:         getenvInt("NOTEBOOKD_CONDA_POOL_TARGET", 1),
		MaxEnvAge:           getenvDuration("NOTEBOOKD_MAX_ENV_AGE", 48*time.Hour),
		BlobInlineThreshold: getenvBytes("NOTEBOOKD_BLOB_INLINE_THRESHOLD", 4*units.KiB),
		UvPath:              getenv("NOTEBOOKD_UV_PATH", "uv"),
		CondaPath:           getenv("NOTEBOOKD_CONDA_PATH", "conda"),
		DebugConsole:        getenv("NOTEBOOKD_DEBUG_CONSOLE", "") == "1",
	}
	for _, dir := range []string{cfg.DaemonDir, cfg.ConfigDir, cfg.DocsDir, cfg.EnvCacheDir, cfg.RuntimeDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return DaemonConfig{}, fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return cfg, nil
}
