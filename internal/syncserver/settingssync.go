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
	"fmt"
	"io"

	"github.com/launix-de/notebookd/internal/framing"
)

// HandleSettingsSync runs the single process-wide settings document's
// sync loop for one connection: v1 raw frames only, since the
// settings document has no per-notebook protocol negotiation
// (spec.md §4.E, §6).
func (h *Hub) HandleSettingsSync(ctx context.Context, rw io.ReadWriter) error {
	peer := h.Settings.NewPeerState()

	flush := func() error {
		for {
			msg, ok := h.Settings.GenerateSyncMessage(peer)
			if !ok {
				return nil
			}
			if err := framing.WriteFrame(rw, msg); err != nil {
				return fmt.Errorf("syncserver: settings catch-up: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	wake, unsubscribe := h.subscribeSettingsChange()
	defer unsubscribe()

	incoming := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(incoming)
		for {
			payload, err := framing.ReadFrame(rw, framing.MaxDataFrameSize)
			if err != nil {
				readErr <- err
				return
			}
			incoming <- payload
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case payload, ok := <-incoming:
			if !ok {
				return nil
			}
			if err := h.Settings.ReceiveSyncMessage(peer, payload); err != nil {
				return fmt.Errorf("syncserver: apply settings sync message: %w", err)
			}
			h.NotifySettingsChanged()
		case <-wake:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
