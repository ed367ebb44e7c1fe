package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/launix-de/notebookd/internal/pool"
)

type fakeBackend struct{ name string }

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) CreateOne(ctx context.Context, cacheDir string) (pool.PooledEnv, error) {
	return pool.PooledEnv{EnvType: f.name}, nil
}

func mkEnv(t *testing.T, cacheDir, name string, withInterpreter bool) {
	t.Helper()
	root := filepath.Join(cacheDir, name)
	if err := os.MkdirAll(root, 0750); err != nil {
		t.Fatalf("mkdir %s: %v", root, err)
	}
	if withInterpreter {
		bin := filepath.Join(root, "bin")
		if err := os.MkdirAll(bin, 0750); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		if err := os.WriteFile(filepath.Join(bin, "python"), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatalf("write interpreter: %v", err)
		}
	}
}

func TestRediscoverEnvsAddsValidAndRemovesBroken(t *testing.T) {
	cacheDir := t.TempDir()
	mkEnv(t, cacheDir, "uv-valid1", true)
	mkEnv(t, cacheDir, "uv-broken", false)
	mkEnv(t, cacheDir, "conda-valid1", true) // wrong prefix, must be ignored

	p := pool.New(&fakeBackend{name: "uv"}, cacheDir, 2, 0, nil)
	rediscoverEnvs(p, cacheDir, "uv", 2)

	if got := p.Status().Available; got != 1 {
		t.Fatalf("expected 1 rediscovered env, got %d", got)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "uv-broken")); !os.IsNotExist(err) {
		t.Fatalf("expected broken env dir removed, stat err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "conda-valid1")); err != nil {
		t.Fatalf("expected unrelated prefix left alone: %v", err)
	}
}

func TestRediscoverEnvsRespectsTargetCap(t *testing.T) {
	cacheDir := t.TempDir()
	mkEnv(t, cacheDir, "uv-a", true)
	mkEnv(t, cacheDir, "uv-b", true)
	mkEnv(t, cacheDir, "uv-c", true)

	p := pool.New(&fakeBackend{name: "uv"}, cacheDir, 3, 0, nil)
	rediscoverEnvs(p, cacheDir, "uv", 2)

	if got := p.Status().Available; got != 2 {
		t.Fatalf("expected target cap of 2, got %d", got)
	}
}

func TestRediscoverEnvsOnMissingCacheDirIsNoop(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "does-not-exist")
	p := pool.New(&fakeBackend{name: "uv"}, cacheDir, 2, 0, nil)
	rediscoverEnvs(p, cacheDir, "uv", 2)
	if got := p.Status().Available; got != 0 {
		t.Fatalf("expected 0 available, got %d", got)
	}
}
