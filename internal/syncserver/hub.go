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

package syncserver

import (
	"sync"

	"github.com/launix-de/notebookd/internal/blobstore"
	"github.com/launix-de/notebookd/internal/pool"
	"github.com/launix-de/notebookd/internal/room"
	"github.com/launix-de/notebookd/internal/settingsdoc"
)

// Hub is the process-wide state every connection handler dispatches
// against: the room registry, one Pool per backend, the blob store and
// the settings document. internal/daemon constructs exactly one of
// these and routes every accepted connection's handshake into its
// methods (spec.md §4.A).
type Hub struct {
	Rooms    *room.Registry
	Pools    map[string]*pool.Pool // keyed by backend name: "uv", "conda"
	Blobs    *blobstore.Store
	Settings *settingsdoc.Doc

	DocsDir    string
	RuntimeDir string

	mu         sync.Mutex
	shutdownFn func()

	settingsSubsMu sync.Mutex
	settingsSubs   map[chan struct{}]struct{}
}

// NewHub constructs a Hub. shutdownFn is invoked once by the Shutdown
// RPC verb; internal/daemon supplies its own accept-loop teardown.
func NewHub(rooms *room.Registry, pools map[string]*pool.Pool, blobs *blobstore.Store, settings *settingsdoc.Doc, docsDir, runtimeDir string, shutdownFn func()) *Hub {
	return &Hub{
		Rooms:        rooms,
		Pools:        pools,
		Blobs:        blobs,
		Settings:     settings,
		DocsDir:      docsDir,
		RuntimeDir:   runtimeDir,
		shutdownFn:   shutdownFn,
		settingsSubs: make(map[chan struct{}]struct{}),
	}
}

// subscribeSettingsChange registers a wakeup channel for the
// settings_sync fanout; unsubscribe must be called when the
// connection closes.
func (h *Hub) subscribeSettingsChange() (ch chan struct{}, unsubscribe func()) {
	ch = make(chan struct{}, 1)
	h.settingsSubsMu.Lock()
	h.settingsSubs[ch] = struct{}{}
	h.settingsSubsMu.Unlock()
	return ch, func() {
		h.settingsSubsMu.Lock()
		delete(h.settingsSubs, ch)
		h.settingsSubsMu.Unlock()
	}
}

// NotifySettingsChanged wakes every settings_sync connection so it
// regenerates its outgoing sync message, and resets every pool's
// backoff/failure state since whatever changed may have fixed the
// config typo that was causing creations to fail (spec.md §4.E: "reset
// any per-pool backoff state"). Called both by the file watcher and by
// each connection after applying an incoming sync message from another
// peer — either way the settings document just changed.
func (h *Hub) NotifySettingsChanged() {
	for _, p := range h.Pools {
		p.ResetFailure()
	}

	h.settingsSubsMu.Lock()
	defer h.settingsSubsMu.Unlock()
	for ch := range h.settingsSubs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) triggerShutdown() {
	h.mu.Lock()
	fn := h.shutdownFn
	h.shutdownFn = nil
	h.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

// roomSummaries builds the RoomsList payload (spec.md §6: ListRooms).
func (h *Hub) roomSummaries() []RoomSummary {
	rooms := h.Rooms.List()
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		s := RoomSummary{NotebookID: r.NotebookID, ActivePeers: r.PeerCount()}
		if info, ok := r.KernelInfoSnapshot(); ok {
			s.HasKernel = true
			s.KernelStatus = string(info.Status)
		}
		out = append(out, s)
	}
	return out
}
