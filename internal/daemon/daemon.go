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

// Package daemon is the top-level process wiring of spec.md §4.J: the
// singleton lock, discovery file, accept loop, warming loops, settings
// watcher, existing-env rediscovery, and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/dc0d/onexit"

	"github.com/launix-de/notebookd/internal/blobstore"
	"github.com/launix-de/notebookd/internal/config"
	"github.com/launix-de/notebookd/internal/logging"
	"github.com/launix-de/notebookd/internal/pool"
	"github.com/launix-de/notebookd/internal/room"
	"github.com/launix-de/notebookd/internal/scheduler"
	"github.com/launix-de/notebookd/internal/settingsdoc"
	"github.com/launix-de/notebookd/internal/syncserver"
)

// Daemon owns every process-wide singleton named in spec.md §4.J.
type Daemon struct {
	cfg config.DaemonConfig

	lock      *singletonLock
	listener  net.Listener
	blobHTTP  *blobHTTPServer
	sched     *scheduler.Scheduler
	stopWatch func()
	stopWarm  []func()

	Hub      *syncserver.Hub
	Rooms    *room.Registry
	Pools    map[string]*pool.Pool
	Settings *settingsdoc.Doc
	Blobs    *blobstore.Store

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New resolves configuration, acquires the singleton lock, and wires
// every subsystem, but does not yet start the accept loop — callers
// get a chance to inspect/override before Run. If another daemon holds
// the lock, New returns a nil *Daemon and AcquireSingleton's error.
func New() (*Daemon, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	lock, err := AcquireSingleton(cfg.DaemonDir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:        cfg,
		lock:       lock,
		shutdownCh: make(chan struct{}),
	}
	onexit.Register(d.releaseLock)

	automergePath := filepath.Join(cfg.DaemonDir, "settings.automerge")
	jsonPath := filepath.Join(cfg.ConfigDir, "settings.json")
	settingsDoc, changed, err := settingsdoc.MigrateFromJSONIfNeeded(automergePath, jsonPath)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("daemon: load settings: %w", err)
	}
	if changed {
		if err := settingsDoc.Persist(automergePath); err != nil {
			logging.Warnf("daemon", "persist migrated settings: %v", err)
		}
	}
	d.Settings = settingsDoc

	blobRoot := filepath.Join(cfg.DaemonDir, "blobs")
	d.Blobs = blobstore.NewStore(blobstore.NewFileBackend(blobRoot))

	d.Rooms = room.NewRegistry()
	d.sched = scheduler.New()

	uvSettings, _ := settingsDoc.GetList("envs.uv.default_packages")
	condaSettings, _ := settingsDoc.GetList("envs.conda.default_packages")
	uvPool := pool.New(&pool.UvBackend{UvPath: cfg.UvPath, DefaultPackages: uvSettings}, cfg.EnvCacheDir, cfg.UvTarget, cfg.MaxEnvAge, logPoolState("uv"))
	condaPool := pool.New(&pool.CondaBackend{CondaPath: cfg.CondaPath, DefaultPackages: condaSettings}, cfg.EnvCacheDir, cfg.CondaTarget, cfg.MaxEnvAge, logPoolState("conda"))
	d.Pools = map[string]*pool.Pool{"uv": uvPool, "conda": condaPool}

	d.Hub = syncserver.NewHub(d.Rooms, d.Pools, d.Blobs, d.Settings, cfg.DocsDir, cfg.RuntimeDir, d.RequestShutdown)

	return d, nil
}

func (d *Daemon) releaseLock() {
	d.lock.Release()
}

// DebugConsoleEnabled reports whether NOTEBOOKD_DEBUG_CONSOLE asked
// for the chzyer/readline REPL (spec.md §4.J/§4.M).
func (d *Daemon) DebugConsoleEnabled() bool {
	return d.cfg.DebugConsole
}

// Run starts the accept loop, warming loops, blob HTTP server, and
// settings watcher, and blocks until the daemon is asked to shut down
// (via RequestShutdown, an OS signal handled by the caller cancelling
// ctx, or ctx's own cancellation). It always leaves the socket file
// and lock released on return.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer d.teardown()

	rediscoverEnvs(d.Pools["uv"], d.cfg.EnvCacheDir, "uv", d.cfg.UvTarget)
	rediscoverEnvs(d.Pools["conda"], d.cfg.EnvCacheDir, "conda", d.cfg.CondaTarget)
	for name, p := range d.Pools {
		d.stopWarm = append(d.stopWarm, startWarmingLoop(d.sched, p, name))
	}

	blobHTTP, err := startBlobHTTPServer(d.Blobs)
	if err != nil {
		return fmt.Errorf("daemon: start blob http server: %w", err)
	}
	d.blobHTTP = blobHTTP
	d.Hub.SetBlobHTTPPortFunc(blobHTTP.Port)

	jsonPath := filepath.Join(d.cfg.ConfigDir, "settings.json")
	if _, statErr := os.Stat(jsonPath); statErr == nil {
		stopWatch, watchErr := d.Settings.WatchJSON(jsonPath, d.sched, d.Hub.NotifySettingsChanged)
		if watchErr != nil {
			logging.Warnf("daemon", "start settings watcher: %v", watchErr)
		} else {
			d.stopWatch = stopWatch
		}
	}

	sockPath := socketPath(d.cfg.DaemonDir)
	ln, err := listenUnix(sockPath)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", sockPath, err)
	}
	d.listener = ln

	if err := WriteDiscovery(d.cfg.DaemonDir, Discovery{SocketPath: sockPath, BlobHTTPPort: blobHTTP.Port()}); err != nil {
		return fmt.Errorf("daemon: write discovery file: %w", err)
	}
	logging.Infof("daemon", "listening on %s, blob http port %d", sockPath, blobHTTP.Port())

	go func() {
		select {
		case <-d.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.acceptLoop(ctx, ln)
	return nil
}

// RequestShutdown implements spec.md §4.J's shutdown trigger, shared
// by the Shutdown RPC verb (internal/syncserver's DispatchPool calls
// this via the shutdownFn passed to NewHub) and OS signal handling in
// cmd/notebookd. Idempotent.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

// teardown implements the rest of spec.md §4.J's shutdown sequence
// once the accept loop has unblocked: drop all rooms (shutting down
// their kernels), stop the warming loops and settings watcher, close
// the blob HTTP server, remove the socket file, and release the
// singleton lock.
func (d *Daemon) teardown() {
	for _, r := range d.Rooms.List() {
		r.Close()
	}
	for _, stop := range d.stopWarm {
		stop()
	}
	if d.stopWatch != nil {
		d.stopWatch()
	}
	d.sched.Stop()
	if d.blobHTTP != nil {
		if err := d.blobHTTP.Close(); err != nil {
			logging.Warnf("daemon", "close blob http server: %v", err)
		}
	}
	os.Remove(socketPath(d.cfg.DaemonDir))
	d.lock.Release()
	logging.Infof("daemon", "shutdown complete")
}
