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

// Package debugconsole is the local-terminal-only REPL named in
// SPEC_FULL.md §4.J/§4.M: a handful of introspection commands that go
// through the same Request/Response dispatch as the Pool RPC channel.
// It is a second transport for that dispatch, not a parallel code
// path — every command here ends in a call to syncserver.Hub's own
// DispatchPool.
package debugconsole

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/launix-de/notebookd/internal/syncserver"
)

const prompt = "\033[32mnotebookd>\033[0m "
const resultPrefix = "\033[31m=\033[0m "

// commands maps a typed-in verb to the Request it dispatches. Grounded
// directly on the teacher's scm.Repl (scm/prompt.go): readline.NewEx
// with a history file and interrupt prompt, one line read per loop
// iteration. An unknown command prints a message and the loop goes on;
// there is no panic recovery around dispatch.
var commands = map[string]syncserver.Request{
	"status": {Verb: "Status"},
	"rooms":  {Verb: "ListRooms"},
	"flush":  {Verb: "FlushPool"},
	"ping":   {Verb: "Ping"},
}

// Run starts the REPL against hub and blocks until EOF or a readline
// error. An interrupt (^C) is ignored and the next line is read.
func Run(hub *syncserver.Hub) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".notebookd-debug-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("debugconsole: init readline: %w", err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("debugconsole: readline: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "help" {
			fmt.Println("commands: status, rooms, flush, ping")
			continue
		}

		req, ok := commands[line]
		if !ok {
			fmt.Printf("debugconsole: unknown command %q (try: status, rooms, flush, ping, help)\n", line)
			continue
		}
		runCommand(hub, req)
	}
}

// runCommand dispatches req through the exact same Hub.DispatchPool a
// Pool-channel connection would use and prints the response as JSON.
func runCommand(hub *syncserver.Hub, req syncserver.Request) {
	resp := hub.DispatchPool(context.Background(), req)
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Println("debugconsole: marshal response:", err)
		return
	}
	fmt.Println(resultPrefix + string(out))
}
