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

	"github.com/launix-de/notebookd/internal/framing"
	"github.com/launix-de/notebookd/internal/pool"
)

// HandlePoolStateSubscribe pushes every pool.State change (spec.md
// §4.F's onStateChange hook) to the connection as v1 JSON frames,
// starting with the current snapshot of every backend so a freshly
// connected subscriber doesn't have to wait for the next transition.
func (h *Hub) HandlePoolStateSubscribe(ctx context.Context, rw io.ReadWriter) error {
	updates := make(chan pool.State, 64)
	unsubs := make([]func(), 0, len(h.Pools))
	for _, p := range h.Pools {
		unsub := p.Subscribe(func(s pool.State) {
			select {
			case updates <- s:
			default:
			}
		})
		unsubs = append(unsubs, unsub)
		updates <- p.Status()
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-updates:
			payload, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("syncserver: marshal pool state: %w", err)
			}
			if err := framing.WriteFrame(rw, payload); err != nil {
				return fmt.Errorf("syncserver: write pool state: %w", err)
			}
		}
	}
}
