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

// Package kernel drives the lifecycle of a single Jupyter kernel
// subprocess on behalf of a Room: launch, the iopub/shell reader
// tasks, the execution queue, and teardown (spec.md §4.G). The wire
// transport (ZMQ sockets, HMAC-signed envelopes) is a lower-level
// concern, carried here by github.com/go-zeromq/zmq4 rather than
// redefined.
package kernel

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// ConnectionInfo is the Jupyter kernel connection file contract.
type ConnectionInfo struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	SignatureScheme string `json:"signature_scheme"`
	Key             string `json:"key"`
}

// reserveFivePorts binds five loopback TCP listeners just long enough
// to learn free port numbers, then closes them so the kernel
// subprocess can bind the real ZMQ sockets there (spec.md §4.G step 1:
// "reserve five TCP ports on loopback").
func reserveFivePorts() ([5]int, error) {
	var ports [5]int
	var listeners []*net.TCPListener
	defer func() {
		for _, l := range listeners {
			l.Close()
		}
	}()
	for i := range ports {
		l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
		if err != nil {
			return ports, fmt.Errorf("kernel: reserve port %d: %w", i, err)
		}
		listeners = append(listeners, l)
		ports[i] = l.Addr().(*net.TCPAddr).Port
	}
	return ports, nil
}

// randomKey returns a random hex-encoded HMAC key, matching the
// "key=random" requirement of spec.md §4.G step 2.
func randomKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("kernel: generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// buildConnectionInfo implements spec.md §4.G steps 1-2.
func buildConnectionInfo() (ConnectionInfo, error) {
	ports, err := reserveFivePorts()
	if err != nil {
		return ConnectionInfo{}, err
	}
	key, err := randomKey()
	if err != nil {
		return ConnectionInfo{}, err
	}
	return ConnectionInfo{
		Transport:       "tcp",
		IP:              "127.0.0.1",
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
		SignatureScheme: "hmac-sha256",
		Key:             key,
	}, nil
}

// connectionFilePath implements the runtime-dir naming rule
// ("{runtime_dir}/{prefix}-kernel-{id}.json", spec.md §3 glossary of paths).
func connectionFilePath(runtimeDir, id string) string {
	return filepath.Join(runtimeDir, fmt.Sprintf("notebookd-kernel-%s.json", id))
}

// writeConnectionFile implements spec.md §4.G step 3.
func writeConnectionFile(path string, info ConnectionInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("kernel: marshal connection info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("kernel: mkdir runtime dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// removeConnectionFile is best-effort, matching the shutdown/drop
// cleanup step of spec.md §4.G.
func removeConnectionFile(path string) {
	_ = os.Remove(path)
}
