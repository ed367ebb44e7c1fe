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

	"github.com/launix-de/notebookd/internal/pool"
)

// DispatchPool handles the verbs that only ever arrive on the Pool
// channel (spec.md §6): Take, Return, Status, Ping, FlushPool,
// Shutdown, InspectNotebook, ListRooms. These daemon-wide verbs are
// intentionally also reachable here rather than only from a would-be
// "admin" channel, matching spec.md §4.A's channel table, which lists
// the Pool channel as the one a CLI/debug client dials for both
// environment management and whole-daemon introspection.
func (h *Hub) DispatchPool(ctx context.Context, req Request) Response {
	switch req.Verb {
	case "Take":
		p, ok := h.Pools[req.EnvType]
		if !ok {
			return errorResponse(req.Verb, fmt.Errorf("unknown env_type %q", req.EnvType))
		}
		if env, ok := p.Take(); ok {
			return Response{Verb: "Env", Env: toEnvJSON(env)}
		}
		env, err := p.CreateOnDemand(ctx)
		if err != nil {
			return Response{Verb: "Empty", Error: err.Error()}
		}
		return Response{Verb: "Env", Env: toEnvJSON(env)}

	case "Return":
		if req.Env == nil {
			return errorResponse(req.Verb, fmt.Errorf("missing env"))
		}
		p, ok := h.Pools[req.Env.EnvType]
		if !ok {
			return errorResponse(req.Verb, fmt.Errorf("unknown env_type %q", req.Env.EnvType))
		}
		p.Return(fromEnvJSON(*req.Env))
		return Response{Verb: "Returned"}

	case "Status":
		resp := Response{Verb: "Stats"}
		if p, ok := h.Pools["uv"]; ok {
			st := p.Status()
			resp.UvAvailable, resp.UvWarming = st.Available, st.Warming
			resp.UvError = st.Failure.LastError
		}
		if p, ok := h.Pools["conda"]; ok {
			st := p.Status()
			resp.CondaAvailable, resp.CondaWarming = st.Available, st.Warming
			resp.CondaError = st.Failure.LastError
		}
		return resp

	case "Ping":
		return Response{Verb: "Pong"}

	case "FlushPool":
		for _, p := range h.Pools {
			p.Flush()
		}
		return Response{Verb: "Flushed"}

	case "Shutdown":
		h.triggerShutdown()
		return Response{Verb: "ShuttingDown"}

	case "InspectNotebook":
		r, ok := h.Rooms.Get(req.NotebookID)
		if !ok {
			return errorResponse(req.Verb, fmt.Errorf("no such room %q", req.NotebookID))
		}
		resp := Response{Verb: "NotebookState", CellCount: r.Doc.CellCount()}
		if info, ok := r.KernelInfoSnapshot(); ok {
			resp.HasKernel = true
			resp.Status = string(info.Status)
		}
		return resp

	case "ListRooms":
		return Response{Verb: "RoomsList", Rooms: h.roomSummaries()}

	default:
		return errorResponse(req.Verb, fmt.Errorf("unknown pool verb %q", req.Verb))
	}
}

func toEnvJSON(env pool.PooledEnv) *PooledEnvJSON {
	return &PooledEnvJSON{EnvType: env.EnvType, RootPath: env.RootPath, InterpreterPath: env.InterpreterPath}
}

func fromEnvJSON(j PooledEnvJSON) pool.PooledEnv {
	return pool.PooledEnv{EnvType: j.EnvType, RootPath: j.RootPath, InterpreterPath: j.InterpreterPath}
}
