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
	"errors"
	"fmt"
	"io"

	"github.com/launix-de/notebookd/internal/framing"
)

// HandleConnection reads the handshake frame and routes the rest of
// the connection's lifetime to the matching channel handler (spec.md
// §4.A). internal/daemon calls this once per accepted connection.
func (h *Hub) HandleConnection(ctx context.Context, rw io.ReadWriter) error {
	raw, err := framing.ReadFrame(rw, 0)
	if err != nil {
		return fmt.Errorf("syncserver: read handshake: %w", err)
	}
	hs, err := framing.DecodeHandshake(raw)
	if err != nil {
		return fmt.Errorf("syncserver: handshake: %w", err)
	}

	switch hs.Kind {
	case framing.ChannelNotebookSync:
		return h.HandleNotebookSync(ctx, rw, hs)
	case framing.ChannelPool:
		return h.handlePoolChannel(ctx, rw)
	case framing.ChannelSettingsSync:
		return h.HandleSettingsSync(ctx, rw)
	case framing.ChannelBlob:
		for {
			if err := h.HandleBlob(rw); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	case framing.ChannelPoolStateSubscribe:
		return h.HandlePoolStateSubscribe(ctx, rw)
	default:
		return fmt.Errorf("syncserver: unroutable handshake kind %q", hs.Kind)
	}
}

// handlePoolChannel loops one JSON-request-per-v1-frame over the Pool
// channel's RPC verbs until the client disconnects (spec.md §6).
func (h *Hub) handlePoolChannel(ctx context.Context, rw io.ReadWriter) error {
	for {
		raw, err := framing.ReadFrame(rw, 0)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("syncserver: read pool request: %w", err)
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("syncserver: decode pool request: %w", err)
		}
		resp := h.DispatchPool(ctx, req)
		out, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("syncserver: marshal pool response: %w", err)
		}
		if err := framing.WriteFrame(rw, out); err != nil {
			return fmt.Errorf("syncserver: write pool response: %w", err)
		}
	}
}
