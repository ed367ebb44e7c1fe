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
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/launix-de/notebookd/internal/framing"
	"github.com/launix-de/notebookd/internal/kernel"
	"github.com/launix-de/notebookd/internal/notebookdoc"
	"github.com/launix-de/notebookd/internal/outputs"
	"github.com/launix-de/notebookd/internal/room"
)

// notebookConn is one peer's view of a room: the v1/v2 negotiated
// connection, its Automerge peer state, and the room it joined.
type notebookConn struct {
	hub  *Hub
	rw   io.ReadWriter
	v2   bool
	room *room.Room
	peer *notebookdoc.PeerState
}

// HandleNotebookSync implements spec.md §4.I end to end: peer join,
// initial catch-up, the four-source event loop, and peer leave. rw is
// the connection after the handshake frame has already been consumed.
func (h *Hub) HandleNotebookSync(ctx context.Context, rw io.ReadWriter, hs framing.Handshake) error {
	v2 := hs.Protocol == framing.ProtocolV2
	if v2 {
		caps, err := framing.EncodeCapabilities()
		if err != nil {
			return err
		}
		if err := framing.WriteFrame(rw, caps); err != nil {
			return fmt.Errorf("syncserver: send capabilities: %w", err)
		}
	}

	r, err := h.Rooms.GetOrCreate(hs.NotebookID, h.DocsDir)
	if err != nil {
		return fmt.Errorf("syncserver: join room %s: %w", hs.NotebookID, err)
	}
	r.IncPeers()
	defer r.DecPeers()

	nc := &notebookConn{hub: h, rw: rw, v2: v2, room: r, peer: r.Doc.NewPeerState()}

	if err := r.Doc.CatchUp(nc.peer, nc.sendSyncMessage); err != nil {
		return fmt.Errorf("syncserver: catch up %s: %w", hs.NotebookID, err)
	}

	return nc.loop(ctx)
}

func (nc *notebookConn) sendSyncMessage(msg []byte) error {
	if nc.v2 {
		return framing.WriteTyped(nc.rw, framing.TypeAutomergeSync, msg)
	}
	return framing.WriteFrame(nc.rw, msg)
}

// inboundFrame is one frame read off the wire, tagged with its v2
// frame type so the event loop doesn't need to re-derive it (v1
// connections always tag as TypeAutomergeSync, the only thing they
// ever carry).
type inboundFrame struct {
	tag     framing.Type
	payload []byte
}

// loop multiplexes four sources: incoming frames from the peer, the
// room's own "doc changed" wakeup (to push this peer's outstanding
// sync messages), the room's output-broadcast channel, and the room
// kernel's queue commands. A v1 (legacy) connection only ever
// exchanges raw sync messages, so Request/Response handling below is
// simply unreachable for it.
func (nc *notebookConn) loop(ctx context.Context) error {
	incoming := make(chan inboundFrame)
	readErr := make(chan error, 1)
	go nc.readLoop(incoming, readErr)

	var kernelCmds <-chan kernel.QueueCommand
	if k, ok := nc.room.Kernel(); ok {
		kernelCmds = k.QueueCommands()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case f, ok := <-incoming:
			if !ok {
				return nil
			}
			if err := nc.handleIncoming(f); err != nil {
				return err
			}

		case <-nc.room.Changed():
			if err := nc.flushOutgoingSync(); err != nil {
				return err
			}

		case ev, ok := <-nc.room.Output():
			if !ok {
				continue
			}
			if err := nc.sendBroadcast(ev); err != nil {
				return err
			}

		case cmd, ok := <-kernelCmds:
			if !ok {
				kernelCmds = nil
				continue
			}
			nc.applyKernelCommand(cmd)
			// A fresh kernel may have attached since we last read this
			// field, e.g. right after LaunchKernel on this very
			// connection; re-fetch it next iteration.
			if k, ok := nc.room.Kernel(); ok {
				kernelCmds = k.QueueCommands()
			} else {
				kernelCmds = nil
			}
		}
	}
}

func (nc *notebookConn) readLoop(out chan<- inboundFrame, errc chan<- error) {
	defer close(out)
	for {
		if nc.v2 {
			f, err := framing.ReadTyped(nc.rw, framing.MaxDataFrameSize)
			if err != nil {
				errc <- err
				return
			}
			switch f.Type {
			case framing.TypeAutomergeSync, framing.TypeRequest:
				out <- inboundFrame{tag: f.Type, payload: f.Payload}
			default:
				// Broadcast/Response frames are server->client only; a
				// client sending one is a protocol violation we ignore
				// rather than tear the connection down for.
			}
		} else {
			payload, err := framing.ReadFrame(nc.rw, framing.MaxDataFrameSize)
			if err != nil {
				errc <- err
				return
			}
			out <- inboundFrame{tag: framing.TypeAutomergeSync, payload: payload}
		}
	}
}

// handleIncoming dispatches one frame read by readLoop.
func (nc *notebookConn) handleIncoming(f inboundFrame) error {
	switch f.tag {
	case framing.TypeRequest:
		return nc.handleRequest(f.payload)
	default:
		if err := nc.room.Doc.ReceiveSyncMessage(nc.peer, f.payload); err != nil {
			return fmt.Errorf("syncserver: apply sync message: %w", err)
		}
		nc.room.NotifyChanged()
		return nil
	}
}

// handleRequest decodes a Request frame, dispatches it, and writes
// back a Response frame (spec.md §4.I's Notebook RPC verbs).
func (nc *notebookConn) handleRequest(payload []byte) error {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("syncserver: decode request: %w", err)
	}
	resp := nc.hub.dispatchNotebookRequest(context.Background(), nc.room, req)
	out, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("syncserver: marshal response: %w", err)
	}
	return framing.WriteTyped(nc.rw, framing.TypeResponse, out)
}

// dispatchNotebookRequest handles the verbs that are only meaningful
// in the context of an already-joined room (spec.md §4.I), falling
// back to the daemon-wide verbs shared with the Pool channel.
func (h *Hub) dispatchNotebookRequest(ctx context.Context, r *room.Room, req Request) Response {
	switch req.Verb {
	case "LaunchKernel":
		return h.launchKernel(ctx, r, req)
	case "ExecuteCell":
		if err := h.handleExecuteCell(r, req.CellID); err != nil {
			return errorResponse(req.Verb, err)
		}
		return Response{Verb: "CellQueued"}
	case "InterruptExecution":
		k, ok := r.Kernel()
		if !ok {
			return errorResponse(req.Verb, fmt.Errorf("no kernel running"))
		}
		if err := k.Interrupt(); err != nil {
			return errorResponse(req.Verb, err)
		}
		return Response{Verb: "Interrupted"}
	case "ShutdownKernel":
		return h.shutdownKernel(r)
	case "GetHistory":
		k, ok := r.Kernel()
		if !ok {
			return errorResponse(req.Verb, fmt.Errorf("no kernel running"))
		}
		entries, err := k.GetHistory(req.Pattern, req.Count, req.Unique)
		if err != nil {
			return errorResponse(req.Verb, err)
		}
		raw := make([]json.RawMessage, len(entries))
		for i, e := range entries {
			b, _ := json.Marshal(e)
			raw[i] = b
		}
		return Response{Verb: "History", History: raw}
	default:
		return h.DispatchPool(ctx, req)
	}
}

func (h *Hub) handleExecuteCell(r *room.Room, cellID string) error {
	k, ok := r.Kernel()
	if !ok {
		return fmt.Errorf("no kernel running")
	}
	r.Doc.ClearOutputs(cellID)
	r.NotifyChanged()
	k.QueueCell(cellID, "")
	return nil
}

func (nc *notebookConn) applyKernelCommand(cmd kernel.QueueCommand) {
	k, ok := nc.room.Kernel()
	if !ok {
		return
	}
	switch c := cmd.(type) {
	case kernel.ExecutionDoneCommand:
		k.ExecutionDone(c.CellID)
	case kernel.CellErrorCommand:
		// Stop-on-error: an error on the executing cell drops the rest
		// of the queue instead of running b, c, ... (spec.md §4.I).
		k.ClearQueue()
	}
}

func (nc *notebookConn) sendBroadcast(ev kernel.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("syncserver: marshal broadcast: %w", err)
	}
	if nc.v2 {
		return framing.WriteTyped(nc.rw, framing.TypeBroadcast, payload)
	}
	// v1 connections have no broadcast frame type; they simply never
	// see kernel events, matching the legacy protocol's sync-only scope.
	return nil
}

func (nc *notebookConn) flushOutgoingSync() error {
	return nc.room.Doc.CatchUp(nc.peer, nc.sendSyncMessage)
}

// launchKernel implements spec.md §4.G's pool-to-process pipeline for
// the LaunchKernel RPC verb: take (or on-demand create) a pooled
// interpreter, then hand off to kernel.Launch.
func (h *Hub) launchKernel(ctx context.Context, r *room.Room, req Request) Response {
	if _, ok := r.Kernel(); ok {
		return Response{Verb: "KernelAlreadyRunning"}
	}

	kt := kernel.KernelType(req.KernelType)
	if kt == "" {
		kt = kernel.KernelTypePython
	}

	var interpreter, envSource string
	if kt == kernel.KernelTypePython {
		backend := req.EnvSource
		if backend == "" {
			backend = "uv"
		}
		p, ok := h.Pools[backend]
		if !ok {
			return errorResponse(req.Verb, fmt.Errorf("unknown env_source %q", backend))
		}
		if env, ok := p.Take(); ok {
			interpreter, envSource = env.InterpreterPath, backend
		} else {
			env, err := p.CreateOnDemand(ctx)
			if err != nil {
				return errorResponse(req.Verb, fmt.Errorf("create %s env: %w", backend, err))
			}
			interpreter, envSource = env.InterpreterPath, backend+"/on_demand"
		}
	}

	outputBuilder := outputs.NewBuilder(h.Blobs, outputs.DefaultInlineThreshold)
	k, err := kernel.Launch(ctx, kernel.LaunchParams{
		ID:           uuid.NewString(),
		KernelType:   kt,
		EnvSource:    envSource,
		NotebookPath: req.NotebookPath,
		Interpreter:  interpreter,
		RuntimeDir:   h.RuntimeDir,
		Doc:          r.Doc,
		OutputBuilder: outputBuilder,
		Persist: func() error {
			return r.Doc.Persist(h.DocsDir)
		},
	})
	if err != nil {
		return errorResponse(req.Verb, err)
	}
	r.AttachKernel(k)
	go forwardKernelEvents(r, k)
	return Response{Verb: "KernelLaunched"}
}

// forwardKernelEvents drains a freshly launched kernel's event channel
// onto the room's broadcast channel for the lifetime of the kernel.
func forwardKernelEvents(r *room.Room, k *kernel.RoomKernel) {
	for ev := range k.Events() {
		r.Broadcast(ev)
		if _, ok := ev.(kernel.OutputEvent); ok {
			r.NotifyChanged()
		}
	}
}

func (h *Hub) shutdownKernel(r *room.Room) Response {
	k, ok := r.Kernel()
	if !ok {
		return Response{Verb: "KernelNotRunning"}
	}
	k.Shutdown()
	r.DetachKernel()
	return Response{Verb: "KernelShutDown"}
}

