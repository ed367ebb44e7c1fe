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

// Package jupytermsg models the subset of the Jupyter messaging
// protocol's JSON envelope that notebookd consumes or produces.
// Signing and ZMQ framing live below this package, in the kernel
// transport; this package only knows about header/content shapes.
package jupytermsg

import (
	"encoding/json"
	"fmt"
)

// Header is the standard Jupyter message header.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// Envelope is the five-part Jupyter message, content left as raw JSON
// until Decode resolves it into a typed Content by msg_type.
type Envelope struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	Metadata     json.RawMessage `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Buffers      [][]byte        `json:"buffers,omitempty"`
}

// Message is a decoded envelope: the typed Content replaces the raw
// content bytes once the msg_type is known.
type Message struct {
	Header       Header
	ParentHeader Header
	Metadata     json.RawMessage
	Content      Content
	Buffers      [][]byte
}

// Content is implemented by one struct per message type this daemon
// understands, plus Unknown for anything else. Dynamic dispatch on
// msg_type, per SPEC_FULL.md §4.N / §9 ("dynamic message dispatch").
type Content interface {
	msgType() string
}

type Status struct {
	ExecutionState string `json:"execution_state"`
}

func (Status) msgType() string { return "status" }

type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

func (ExecuteInput) msgType() string { return "execute_input" }

type ExecuteReply struct {
	Status         string            `json:"status"`
	ExecutionCount int               `json:"execution_count"`
	Payload        []json.RawMessage `json:"payload,omitempty"`
	Ename          string            `json:"ename,omitempty"`
	Evalue         string            `json:"evalue,omitempty"`
	Traceback      []string          `json:"traceback,omitempty"`
}

func (ExecuteReply) msgType() string { return "execute_reply" }

type StreamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (StreamContent) msgType() string { return "stream" }

type DisplayData struct {
	Data      map[string]json.RawMessage `json:"data"`
	Metadata  map[string]json.RawMessage `json:"metadata,omitempty"`
	Transient *Transient                 `json:"transient,omitempty"`
}

func (DisplayData) msgType() string { return "display_data" }

type Transient struct {
	DisplayID string `json:"display_id,omitempty"`
}

type ExecuteResult struct {
	ExecutionCount int                        `json:"execution_count"`
	Data           map[string]json.RawMessage `json:"data"`
	Metadata       map[string]json.RawMessage `json:"metadata,omitempty"`
}

func (ExecuteResult) msgType() string { return "execute_result" }

type ErrorOutput struct {
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

func (ErrorOutput) msgType() string { return "error" }

type UpdateDisplayData struct {
	Data      map[string]json.RawMessage `json:"data"`
	Metadata  map[string]json.RawMessage `json:"metadata,omitempty"`
	Transient Transient                  `json:"transient"`
}

func (UpdateDisplayData) msgType() string { return "update_display_data" }

type CommOpen struct {
	CommID     string          `json:"comm_id"`
	TargetName string          `json:"target_name"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (CommOpen) msgType() string { return "comm_open" }

type CommMsg struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (CommMsg) msgType() string { return "comm_msg" }

type CommClose struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (CommClose) msgType() string { return "comm_close" }

// HistoryEntry is one history_reply entry in JSON-object form. The
// wire's tuple forms ([session, line, source] and
// [session, line, [source, output]]) are not decoded here; the kernel
// package normalizes those in decodeHistoryEntry.
type HistoryEntry struct {
	Session int    `json:"session"`
	Line    int    `json:"line"`
	Source  string `json:"source"`
	Output  string `json:"output,omitempty"`
}

type HistoryReply struct {
	History []HistoryEntry `json:"history"`
}

func (HistoryReply) msgType() string { return "history_reply" }

type KernelInfoReply struct {
	Status          string          `json:"status"`
	ProtocolVersion string          `json:"protocol_version"`
	Implementation  string          `json:"implementation"`
	LanguageInfo    json.RawMessage `json:"language_info,omitempty"`
}

func (KernelInfoReply) msgType() string { return "kernel_info_reply" }

type InterruptReply struct {
	Status string `json:"status"`
}

func (InterruptReply) msgType() string { return "interrupt_reply" }

type ShutdownReply struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
}

func (ShutdownReply) msgType() string { return "shutdown_reply" }

// Unknown wraps any msg_type not named above. Decode returns it
// instead of a parse error; this package does not log it.
type Unknown struct {
	MsgType string          `json:"-"`
	Raw     json.RawMessage `json:"-"`
}

func (u Unknown) msgType() string { return u.MsgType }

// Decode parses an envelope's raw content into a typed Message based
// on header.msg_type.
func Decode(env Envelope) (Message, error) {
	content, err := decodeContent(env.Header.MsgType, env.Content)
	if err != nil {
		return Message{}, fmt.Errorf("jupytermsg: decode %s: %w", env.Header.MsgType, err)
	}
	return Message{
		Header:       env.Header,
		ParentHeader: env.ParentHeader,
		Metadata:     env.Metadata,
		Content:      content,
		Buffers:      env.Buffers,
	}, nil
}

func decodeContent(msgType string, raw json.RawMessage) (Content, error) {
	var target Content
	switch msgType {
	case "status":
		target = &Status{}
	case "execute_input":
		target = &ExecuteInput{}
	case "execute_reply":
		target = &ExecuteReply{}
	case "stream":
		target = &StreamContent{}
	case "display_data":
		target = &DisplayData{}
	case "execute_result":
		target = &ExecuteResult{}
	case "error":
		target = &ErrorOutput{}
	case "update_display_data":
		target = &UpdateDisplayData{}
	case "comm_open":
		target = &CommOpen{}
	case "comm_msg":
		target = &CommMsg{}
	case "comm_close":
		target = &CommClose{}
	case "history_reply":
		target = &HistoryReply{}
	case "kernel_info_reply":
		target = &KernelInfoReply{}
	case "interrupt_reply":
		target = &InterruptReply{}
	case "shutdown_reply":
		target = &ShutdownReply{}
	default:
		return Unknown{MsgType: msgType, Raw: raw}, nil
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, err
		}
	}
	// deref to value type for the returned interface, matching the
	// non-pointer Content implementations above.
	switch v := target.(type) {
	case *Status:
		return *v, nil
	case *ExecuteInput:
		return *v, nil
	case *ExecuteReply:
		return *v, nil
	case *StreamContent:
		return *v, nil
	case *DisplayData:
		return *v, nil
	case *ExecuteResult:
		return *v, nil
	case *ErrorOutput:
		return *v, nil
	case *UpdateDisplayData:
		return *v, nil
	case *CommOpen:
		return *v, nil
	case *CommMsg:
		return *v, nil
	case *CommClose:
		return *v, nil
	case *HistoryReply:
		return *v, nil
	case *KernelInfoReply:
		return *v, nil
	case *InterruptReply:
		return *v, nil
	case *ShutdownReply:
		return *v, nil
	}
	return nil, fmt.Errorf("unreachable content type %T", target)
}
