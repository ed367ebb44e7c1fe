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

// Package room implements the per-notebook Room and the process-wide
// registry keyed by notebook_id (spec.md §3, §4.H).
package room

import (
	"sync"
	"sync/atomic"

	"github.com/launix-de/notebookd/internal/kernel"
	"github.com/launix-de/notebookd/internal/notebookdoc"
)

// outputBroadcastCapacity/changedBroadcastCapacity are the buffer
// sizes named in spec.md §4.H ("large capacity, e.g. 256-1024" /
// "small").
const (
	outputBroadcastCapacity  = 512
	changedBroadcastCapacity = 8
)

// Broadcast is whatever the sync server serializes onto the room's
// output-broadcast channel (spec.md §4.I): kernel events plus
// room-level notices like QueueChanged.
type Broadcast = kernel.Event

// Room owns one notebook's CRDT document, its optional running
// kernel, and the broadcast plumbing fanning both out to peers.
type Room struct {
	NotebookID string
	Doc        *notebookdoc.Doc

	mu     sync.Mutex
	kernel *kernel.RoomKernel

	activePeers int64

	output  chan Broadcast
	changed chan struct{}

	drainDone chan struct{}
}

func newRoom(notebookID string, doc *notebookdoc.Doc) *Room {
	return &Room{
		NotebookID: notebookID,
		Doc:        doc,
		output:     make(chan Broadcast, outputBroadcastCapacity),
		changed:    make(chan struct{}, changedBroadcastCapacity),
	}
}

// GetKey and ComputeSize satisfy NonLockingReadMap's KeyGetter
// constraint (third_party/NonLockingReadMap/main.go), which indexes
// the registry by notebook_id. Value receivers are required here: the
// map's generic parameter is the element type itself (Room, not
// *Room), so its method set — not *Room's — must satisfy KeyGetter.
// Neither method touches the embedded mutex, so the implicit copy on
// each call is harmless.
func (r Room) GetKey() string { return r.NotebookID }

func (r Room) ComputeSize() uint {
	return 64 // rooms hold live connections/subprocesses, not raw bytes worth sizing precisely
}

// Output returns the room's output-broadcast channel; sync server
// connections for this room all read from it.
func (r *Room) Output() <-chan Broadcast { return r.output }

// Changed returns the small "someone wrote the doc" notification
// channel used to wake other peers' sync-message generation.
func (r *Room) Changed() <-chan struct{} { return r.changed }

// Broadcast publishes ev to every connected peer, dropping (not
// blocking) if a peer's buffer is full — the "lagged by N" contract
// of spec.md §4.I is enforced per-connection by the sync server, not
// here; this channel itself is shared infrastructure.
func (r *Room) Broadcast(ev Broadcast) {
	select {
	case r.output <- ev:
	default:
	}
}

// NotifyChanged signals other peers that the doc mutated.
func (r *Room) NotifyChanged() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// IncPeers / DecPeers implement spec.md §4.I's peer join/leave
// ref-counting.
func (r *Room) IncPeers() int64 { return atomic.AddInt64(&r.activePeers, 1) }
func (r *Room) DecPeers() int64 { return atomic.AddInt64(&r.activePeers, -1) }
func (r *Room) PeerCount() int64 { return atomic.LoadInt64(&r.activePeers) }

// HasKernel reports whether a kernel is currently attached.
func (r *Room) HasKernel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kernel != nil
}

// Kernel returns the attached kernel, if any.
func (r *Room) Kernel() (*kernel.RoomKernel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kernel, r.kernel != nil
}

// KernelInfo summarizes the attached kernel for ListRooms (spec.md §4.H).
type KernelInfo struct {
	Status kernel.Status
}

func (r *Room) KernelInfoSnapshot() (KernelInfo, bool) {
	r.mu.Lock()
	k := r.kernel
	r.mu.Unlock()
	if k == nil {
		return KernelInfo{}, false
	}
	return KernelInfo{Status: k.Status()}, true
}

// AttachKernel installs a freshly launched kernel. The room must not
// already have one; callers check HasKernel first under the sync
// server's RPC handling (spec.md §4.I: LaunchKernel -> KernelAlreadyRunning).
func (r *Room) AttachKernel(k *kernel.RoomKernel) {
	r.mu.Lock()
	r.kernel = k
	r.mu.Unlock()
}

// DetachKernel removes the kernel reference after shutdown, without
// itself shutting the kernel down (callers call kernel.Shutdown/Drop
// first, per spec.md §4.G).
func (r *Room) DetachKernel() {
	r.mu.Lock()
	r.kernel = nil
	r.mu.Unlock()
}

// Close shuts down any attached kernel — the room-must-not-outlive-its-kernel
// invariant of spec.md §3 — and is idempotent.
func (r *Room) Close() {
	r.mu.Lock()
	k := r.kernel
	r.kernel = nil
	r.mu.Unlock()
	if k != nil {
		k.Drop()
	}
}
