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

// Package blobstore implements the content-addressed blob store:
// SHA-256 hashing, a two-character shard directory layout on the
// local filesystem, and optional mirroring of every write to an
// off-box object-storage backend.
package blobstore

import "errors"

// ErrNotFound is returned by Get when a hash has no stored content.
var ErrNotFound = errors.New("blobstore: hash not found")

// Backend is the interface every persistence backend implements,
// grounded on the teacher's PersistenceEngine factory pattern
// (storage/persistence.go): one small interface, multiple
// interchangeable implementations selected by configuration.
//
// Unlike the teacher's engine (which owns schema/column/log
// concerns for a database), a blob backend only ever stores
// immutable, content-addressed byte strings, so the interface
// collapses to three verbs.
type Backend interface {
	// Put stores data under hash if not already present. Implementations
	// must make concurrent Put calls for the same hash safe and cheap
	// (write-once; a second Put is a no-op).
	Put(hash string, mediaType string, data []byte) error
	// Get returns the stored bytes for hash, or ErrNotFound.
	Get(hash string) ([]byte, error)
	// Delete removes hash. No component in this daemon calls it today
	// (the store is intentionally GC-free, see spec.md §9) but every
	// backend must still implement it so a future GC pass has
	// somewhere to call.
	Delete(hash string) error
}

// Factory constructs a Backend from the daemon's blob-store
// configuration. Exactly one of these runs as the "primary" (the
// local FileBackend — Get always reads from it) and zero or more run
// as best-effort mirrors.
type Factory func(root string, cfg map[string]string) (Backend, error)

// BackendRegistry maps a configured backend name to its Factory,
// mirroring the teacher's storage.BackendRegistry map used to select
// a PersistenceEngine implementation by name at startup.
var BackendRegistry = map[string]Factory{}

func init() {
	BackendRegistry["file"] = func(root string, _ map[string]string) (Backend, error) {
		return NewFileBackend(root), nil
	}
}
