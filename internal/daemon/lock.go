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

package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Discovery is the daemon.json contract of spec.md §6: enough for a
// would-be second daemon (or a client racing startup) to find the
// socket and blob HTTP port of whichever daemon actually won the lock.
type Discovery struct {
	SocketPath   string `json:"socket_path"`
	BlobHTTPPort int    `json:"blob_http_port"`
}

// ErrAlreadyRunning is returned by AcquireSingleton when another
// daemon already holds the lock. Other carries that daemon's
// discovery info, read from daemon.json, per spec.md §4.J: "expose
// the other's discovery info to the would-be client."
type ErrAlreadyRunning struct {
	Other Discovery
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("daemon: another instance is already running at %s", e.Other.SocketPath)
}

// singletonLock wraps the exclusive daemon.lock file named in spec.md
// §7 ("AlreadyExists | singleton lock held"). Grounded on
// waldzellai-container-use's RepositoryLock (repository/flock.go),
// the one pack repo that locks a well-known file path with
// gofrs/flock rather than hand-rolling a PID-file scheme; here the
// lock is held non-blocking for the whole process lifetime instead of
// scoped to one operation.
type singletonLock struct {
	fl *flock.Flock
}

// AcquireSingleton tries to take the exclusive lock at
// {daemonDir}/daemon.lock. If another process already holds it, the
// sibling daemon.json (if present and parseable) is returned inside
// ErrAlreadyRunning so the caller can hand a client the running
// daemon's address instead of just failing.
func AcquireSingleton(daemonDir string) (*singletonLock, error) {
	lockPath := filepath.Join(daemonDir, "daemon.lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("daemon: try lock %s: %w", lockPath, err)
	}
	if !locked {
		other, readErr := readDiscovery(filepath.Join(daemonDir, "daemon.json"))
		if readErr != nil {
			return nil, fmt.Errorf("daemon: lock held by another instance, and its daemon.json is unreadable: %w", readErr)
		}
		return nil, &ErrAlreadyRunning{Other: other}
	}
	return &singletonLock{fl: fl}, nil
}

// Release drops the lock. Registered with dc0d/onexit by the caller
// so it also fires on an os.Exit elsewhere in the process (SPEC_FULL.md
// §4.J).
func (l *singletonLock) Release() {
	if l == nil || l.fl == nil {
		return
	}
	if err := l.fl.Unlock(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: release singleton lock: %v\n", err)
	}
}

func readDiscovery(path string) (Discovery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Discovery{}, err
	}
	var d Discovery
	if err := json.Unmarshal(raw, &d); err != nil {
		return Discovery{}, err
	}
	return d, nil
}

// WriteDiscovery writes daemon.json alongside the socket (spec.md
// §4.J/§6), atomically so a concurrently-starting client never reads
// a half-written file.
func WriteDiscovery(daemonDir string, d Discovery) error {
	path := filepath.Join(daemonDir, "daemon.json")
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("daemon: marshal discovery: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("daemon: write discovery temp: %w", err)
	}
	return os.Rename(tmp, path)
}
