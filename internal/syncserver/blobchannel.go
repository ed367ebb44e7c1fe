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
	"encoding/json"
	"fmt"
	"io"

	"github.com/launix-de/notebookd/internal/framing"
)

// blobAction is the control-message shape on the Blob channel
// (spec.md §6): {"action":"store","media_type":M} followed by a raw
// v1 frame carrying the bytes, or {"action":"get_port"}.
type blobAction struct {
	Action    string `json:"action"`
	MediaType string `json:"media_type,omitempty"`
}

type blobStoreReply struct {
	Hash string `json:"hash"`
}

type blobPortReply struct {
	Port int `json:"port"`
}

// blobHTTPPortFn is set by internal/daemon (via SetBlobHTTPPortFunc) once the blob-serving HTTP
// listener is up, so get_port can answer without the two packages
// depending on each other's internals.
var blobHTTPPortFn func() int

// SetBlobHTTPPortFunc wires the accessor used by get_port.
func (h *Hub) SetBlobHTTPPortFunc(fn func() int) { blobHTTPPortFn = fn }

// HandleBlob services one control message on the Blob channel. It is
// called once per control frame; the caller loops as long as the
// connection stays open, matching the other channel handlers'
// per-request shape (store/get_port are independent RPCs, not a
// stateful session).
func (h *Hub) HandleBlob(rw io.ReadWriter) error {
	controlPayload, err := framing.ReadFrame(rw, 0)
	if err != nil {
		return fmt.Errorf("syncserver: read blob control frame: %w", err)
	}
	var action blobAction
	if err := json.Unmarshal(controlPayload, &action); err != nil {
		return fmt.Errorf("syncserver: decode blob action: %w", err)
	}

	switch action.Action {
	case "store":
		data, err := framing.ReadFrame(rw, framing.MaxDataFrameSize)
		if err != nil {
			return fmt.Errorf("syncserver: read blob data frame: %w", err)
		}
		hash, err := h.Blobs.Put(data, action.MediaType)
		if err != nil {
			return fmt.Errorf("syncserver: store blob: %w", err)
		}
		reply, err := json.Marshal(blobStoreReply{Hash: hash})
		if err != nil {
			return err
		}
		return framing.WriteFrame(rw, reply)

	case "get_port":
		port := 0
		if blobHTTPPortFn != nil {
			port = blobHTTPPortFn()
		}
		reply, err := json.Marshal(blobPortReply{Port: port})
		if err != nil {
			return err
		}
		return framing.WriteFrame(rw, reply)

	default:
		return fmt.Errorf("syncserver: unknown blob action %q", action.Action)
	}
}
