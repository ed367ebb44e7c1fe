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

// Package framing implements the length-prefixed binary protocol that
// every notebookd connection speaks before a channel's own payload
// format takes over: a v1 frame is a bare 4-byte big-endian length
// prefix, a v2 frame additionally carries a one-byte frame-type tag.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxControlFrameSize bounds any frame exchanged before a connection's
// channel has been established by a handshake (control frames: the
// handshake itself, and v2 typed frames on channels that do not carry
// bulk payloads). Per-channel payload frames (blob bytes, notebook
// sync messages) are not subject to this cap once the channel is
// routed to its handler.
const MaxControlFrameSize = 64 * 1024

// MaxDataFrameSize bounds a routed channel's own payload frames (blob
// store bytes, notebook-sync automerge/broadcast messages): larger
// than MaxControlFrameSize since real output blobs and sync messages
// routinely exceed 64 KiB, but still fixed per build so a peer can't
// force an unbounded allocation (spec.md §3/§4.A).
const MaxDataFrameSize = 64 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// the size limit the reader was given (MaxControlFrameSize when the
// caller passes 0).
var ErrFrameTooLarge = errors.New("framing: frame exceeds size limit")

// Type tags distinguish the frame types that share a v2 notebook-sync
// stream: automerge sync messages, broadcasts, requests and responses.
// v1 frames have no tag and are used by channels whose payload format
// is self-describing (blob data).
type Type uint8

const (
	TypeAutomergeSync Type = iota + 1
	TypeBroadcast
	TypeRequest
	TypeResponse
)

func (t Type) String() string {
	switch t {
	case TypeAutomergeSync:
		return "automerge-sync"
	case TypeBroadcast:
		return "broadcast"
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// WriteFrame writes a bare v1 frame: a 4-byte big-endian length prefix
// followed by payload. Used for the blob channel and any stream where
// the payload format carries its own framing beyond the daemon's.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xFFFFFFFF {
		return fmt.Errorf("framing: payload too large: %d bytes", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("framing: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framing: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads a bare v1 frame. maxSize of 0 means MaxControlFrameSize.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = MaxControlFrameSize
	}
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("framing: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("framing: read payload: %w", err)
	}
	return buf, nil
}

// TypedFrame is a v2 frame: length prefix, one-byte type tag, payload.
type TypedFrame struct {
	Type    Type
	Payload []byte
}

// WriteTyped writes a v2 typed frame.
func WriteTyped(w io.Writer, t Type, payload []byte) error {
	if len(payload)+1 > 0xFFFFFFFF {
		return fmt.Errorf("framing: payload too large: %d bytes", len(payload))
	}
	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)+1))
	hdr[4] = byte(t)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("framing: write typed header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framing: write typed payload: %w", err)
	}
	return nil
}

// ReadTyped reads a v2 typed frame. maxSize of 0 means
// MaxControlFrameSize; callers on a routed data channel (notebook
// sync's automerge/broadcast traffic) should pass MaxDataFrameSize.
func ReadTyped(r io.Reader, maxSize uint32) (*TypedFrame, error) {
	if maxSize == 0 {
		maxSize = MaxControlFrameSize
	}
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("framing: read typed length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, errors.New("framing: typed frame missing type tag")
	}
	if n > maxSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("framing: read typed payload: %w", err)
	}
	return &TypedFrame{Type: Type(buf[0]), Payload: buf[1:]}, nil
}
