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

// Package syncserver implements the per-connection handlers for every
// channel dispatched from the handshake (spec.md §4.A, §4.I): the
// notebook-sync peer loop, the pool RPC channel, the blob channel, and
// pool-state subscriptions.
package syncserver

import "encoding/json"

// Request is the tagged-union shape carried in a Request frame, or as
// the whole payload on the Pool channel (spec.md §6: "bit-exact JSON"
// verbs). Verb is the discriminator, mirroring framing.Handshake's
// "kind" field convention.
type Request struct {
	Verb string `json:"verb"`

	// LaunchKernel
	KernelType   string `json:"kernel_type,omitempty"`
	EnvSource    string `json:"env_source,omitempty"`
	NotebookPath string `json:"notebook_path,omitempty"`

	// ExecuteCell / InterruptExecution relate to the room the
	// connection is already bound to, so they carry only CellID.
	CellID string `json:"cell_id,omitempty"`

	// InspectNotebook
	NotebookID string `json:"notebook_id,omitempty"`

	// Pool channel verbs
	EnvType string             `json:"env_type,omitempty"`
	Env     *PooledEnvJSON     `json:"env,omitempty"`

	// GetHistory
	Pattern string `json:"pattern,omitempty"`
	Count   int    `json:"n,omitempty"`
	Unique  bool   `json:"unique,omitempty"`
}

// PooledEnvJSON mirrors pool.PooledEnv for wire transport without the
// syncserver package depending on pool's internal field tags changing
// underneath it.
type PooledEnvJSON struct {
	EnvType         string `json:"env_type"`
	RootPath        string `json:"root_path"`
	InterpreterPath string `json:"interpreter_path"`
}

// Response is the tagged-union reply shape, one case per RPC verb
// named in spec.md §4.I/§6.
type Response struct {
	Verb string `json:"verb"`

	Error string `json:"error,omitempty"`

	// NotebookState (kernel status reported by InspectNotebook)
	Status string `json:"status,omitempty"`

	// Env / Empty (pool Take)
	Env *PooledEnvJSON `json:"env,omitempty"`

	// Stats (pool Status)
	UvAvailable     int    `json:"uv_available,omitempty"`
	UvWarming       int    `json:"uv_warming,omitempty"`
	CondaAvailable  int    `json:"conda_available,omitempty"`
	CondaWarming    int    `json:"conda_warming,omitempty"`
	UvError         string `json:"uv_error,omitempty"`
	CondaError      string `json:"conda_error,omitempty"`

	// NotebookState
	CellCount int      `json:"cell_count,omitempty"`
	HasKernel bool     `json:"has_kernel,omitempty"`

	// RoomsList
	Rooms []RoomSummary `json:"rooms,omitempty"`

	// GetHistory
	History []json.RawMessage `json:"history,omitempty"`
}

// RoomSummary is one entry of a ListRooms response.
type RoomSummary struct {
	NotebookID    string `json:"notebook_id"`
	HasKernel     bool   `json:"has_kernel"`
	KernelStatus  string `json:"kernel_status,omitempty"`
	ActivePeers   int64  `json:"active_peers"`
}

func errorResponse(verb string, err error) Response {
	return Response{Verb: verb, Error: err.Error()}
}
