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
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/launix-de/notebookd/internal/daemon"
	"github.com/launix-de/notebookd/internal/debugconsole"
	"github.com/launix-de/notebookd/internal/logging"
)

func main() {
	fmt.Print(`notebookd Copyright (C) 2024-2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	d, err := daemon.New()
	if err != nil {
		var already *daemon.ErrAlreadyRunning
		if errors.As(err, &already) {
			fmt.Fprintf(os.Stderr, "notebookd: already running at %s (blob http port %d)\n",
				already.Other.SocketPath, already.Other.BlobHTTPPort)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "notebookd: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Infof("main", "signal received, shutting down")
		d.RequestShutdown()
		cancel()
	}()

	if d.DebugConsoleEnabled() {
		go func() {
			if err := debugconsole.Run(d.Hub); err != nil {
				logging.Warnf("main", "debug console: %v", err)
			}
		}()
	}

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "notebookd: %v\n", err)
		os.Exit(1)
	}
}
