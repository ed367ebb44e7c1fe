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

// Package pool implements the environment pool (spec.md §4.F): a
// warm pool of interpreter environments maintained against a target
// size, with exponential backoff on repeated creation failure. The
// core pool logic is backend-agnostic; uv (pip-style) and conda
// (solver-style) backends plug in through the Backend interface.
package pool

import "context"

// PooledEnv is opaque to pool consumers except that InterpreterPath
// must exist and be executable (spec.md §3).
type PooledEnv struct {
	EnvType         string `json:"env_type"`
	RootPath        string `json:"root_path"`
	InterpreterPath string `json:"interpreter_path"`
}

// Backend is the interchangeable creation pipeline behind a Pool.
// The pool contract (maintenance loop, backoff, take/return/flush)
// knows nothing about solvers, installers, or warm-up scripts — that
// is entirely Backend's concern (spec.md §4.F: "the core specifies
// only the pool contract, not the installer").
type Backend interface {
	// Name identifies the backend for logging, singleflight keys, and
	// the env-cache directory naming convention ("{Name()}-{uuid}").
	Name() string
	// CreateOne runs the backend's full creation pipeline (solve,
	// install, warm up) and returns a ready-to-use environment.
	CreateOne(ctx context.Context, cacheDir string) (PooledEnv, error)
}
