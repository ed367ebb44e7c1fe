package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/launix-de/notebookd/internal/notebookdoc"
	"github.com/launix-de/notebookd/internal/outputs"
)

// kernelInfoTimeout is the spec.md §4.G step 8 launch timeout.
const kernelInfoTimeout = 30 * time.Second

// historyTimeout is the spec.md §4.G get_history timeout.
const historyTimeout = 5 * time.Second

// LaunchParams carries everything Launch needs beyond what the
// RoomKernel itself will own afterward.
type LaunchParams struct {
	ID           string
	KernelType   KernelType
	EnvSource    string // free-form provenance tag ("pool", "on_demand", env name) for Status/logging
	NotebookPath string
	Interpreter  string // pooled env interpreter path, python only
	Spec         *KernelSpec
	RuntimeDir   string

	Doc           *notebookdoc.Doc
	OutputBuilder *outputs.Builder
	Persist       func() error
}

// RoomKernel is one kernel subprocess plus the bookkeeping described
// in spec.md §3/§4.G.
type RoomKernel struct {
	id         string
	kernelType KernelType
	envSource  string

	mu        sync.Mutex
	status    Status
	queue     []string
	executing string // "" means none

	cellMap    *cellIDMap
	cmd        *exec.Cmd
	sockets    *socketGroup
	connFile   string
	sessionID  string
	execCount  int

	doc           *notebookdoc.Doc
	outputBuilder *outputs.Builder
	persist       func() error

	events    chan Event
	queueCmds chan QueueCommand
	stop      chan struct{}
	readers   *errgroup.Group

	pendingHistory   map[string]chan []HistoryEntry
	pendingHistoryMu sync.Mutex
}

// Events returns the channel of broadcast-worthy kernel events,
// mirroring the channel-returning style of a Jupyter-kernel-transport
// library's reader-task outputs.
func (k *RoomKernel) Events() <-chan Event { return k.events }

// QueueCommands returns the channel of queue commands the sync server
// must apply (spec.md §5: only the sync-server event loop mutates
// queue/executing).
func (k *RoomKernel) QueueCommands() <-chan QueueCommand { return k.queueCmds }

func (k *RoomKernel) Status() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.status
}

func (k *RoomKernel) setStatus(s Status) {
	k.mu.Lock()
	k.status = s
	k.mu.Unlock()
	k.emit(KernelStatusEvent{Status: s})
}

func (k *RoomKernel) emit(ev Event) {
	select {
	case k.events <- ev:
	default:
		log.Printf("kernel[%s]: events channel full, dropping %s", k.id, ev.eventType())
	}
}

func (k *RoomKernel) postQueueCommand(cmd QueueCommand) {
	select {
	case k.queueCmds <- cmd:
	default:
		log.Printf("kernel[%s]: queue command channel full, dropping %s", k.id, cmd.queueCommandType())
	}
}

// Launch implements spec.md §4.G steps 1-9.
func Launch(ctx context.Context, p LaunchParams) (*RoomKernel, error) {
	info, err := buildConnectionInfo()
	if err != nil {
		return nil, err
	}
	connFile := connectionFilePath(p.RuntimeDir, p.ID)
	if err := writeConnectionFile(connFile, info); err != nil {
		return nil, err
	}

	cmd, err := buildCommand(p.KernelType, p.Interpreter, p.Spec, connFile)
	if err != nil {
		removeConnectionFile(connFile)
		return nil, err
	}
	cmd.Dir = chooseWorkDir(p.NotebookPath)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		removeConnectionFile(connFile)
		return nil, fmt.Errorf("kernel: start subprocess: %w", err)
	}

	// Sleep for the kernel to bind its sockets (spec.md §4.G step 6).
	time.Sleep(500 * time.Millisecond)

	sockets, err := openSockets(ctx, info)
	if err != nil {
		killProcessGroup(cmd.Process.Pid)
		removeConnectionFile(connFile)
		return nil, err
	}

	k := &RoomKernel{
		id:             p.ID,
		kernelType:     p.KernelType,
		envSource:      p.EnvSource,
		status:         StatusStarting,
		cellMap:        newCellIDMap(),
		cmd:            cmd,
		sockets:        sockets,
		connFile:       connFile,
		sessionID:      uuid.New().String(),
		doc:            p.Doc,
		outputBuilder:  p.OutputBuilder,
		persist:        p.Persist,
		events:         make(chan Event, 256),
		queueCmds:      make(chan QueueCommand, 64),
		stop:           make(chan struct{}),
		pendingHistory: map[string]chan []HistoryEntry{},
	}

	if err := k.awaitKernelInfo(); err != nil {
		sockets.Close()
		killProcessGroup(cmd.Process.Pid)
		removeConnectionFile(connFile)
		return nil, err
	}

	// The iopub and shell readers run under one errgroup.Group
	// (spec.md §4.G) so a crash in either tears down the other
	// deterministically: whichever reader hits a real socket error
	// closes the shared socket group before returning, which forces
	// the other reader's blocking recv to fail too.
	k.readers = &errgroup.Group{}
	k.readers.Go(k.runIopubReader)
	k.readers.Go(k.runShellReader)

	k.setStatus(StatusIdle)
	return k, nil
}

// awaitKernelInfo sends kernel_info_request and blocks for a matching
// reply, with the 30s timeout of spec.md §4.G step 8.
func (k *RoomKernel) awaitKernelInfo() error {
	msgID := uuid.New().String()
	header := wireHeader{
		MsgID: msgID, Session: k.sessionID, Username: "notebookd",
		MsgType: "kernel_info_request", Version: "5.3",
	}
	if err := k.sockets.shell.send(nil, wireEnvelope{Header: header}); err != nil {
		return fmt.Errorf("kernel: send kernel_info_request: %w", err)
	}

	type result struct {
		env wireEnvelope
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		for {
			env, _, err := k.sockets.shell.recv()
			if err != nil {
				resultCh <- result{err: err}
				return
			}
			if env.ParentHeader.MsgID == msgID && env.Header.MsgType == "kernel_info_reply" {
				resultCh <- result{env: env}
				return
			}
		}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return fmt.Errorf("kernel: kernel_info_reply: %w", r.err)
		}
		return nil
	case <-time.After(kernelInfoTimeout):
		return fmt.Errorf("kernel: timed out waiting for kernel_info_reply after %s", kernelInfoTimeout)
	}
}

// Shutdown implements spec.md §4.G's Shutdown sequence.
func (k *RoomKernel) Shutdown() {
	k.setStatus(StatusShuttingDown)

	msgID := uuid.New().String()
	content, _ := json.Marshal(map[string]bool{"restart": false})
	_ = k.sockets.shell.send(nil, wireEnvelope{
		Header:  wireHeader{MsgID: msgID, Session: k.sessionID, Username: "notebookd", MsgType: "shutdown_request", Version: "5.3"},
		Content: content,
	})

	if k.cmd.Process != nil {
		if err := killProcessGroup(k.cmd.Process.Pid); err != nil {
			log.Printf("kernel[%s]: kill process group: %v", k.id, err)
		}
	}

	// Closing stop and the sockets, in that order, is what lets the
	// errgroup converge: killing the process unblocks a recv() that's
	// waiting on a reply, but an already-idle recv() only notices the
	// close(k.stop) signal after sockets.Close() forces it to return.
	close(k.stop)
	k.sockets.Close()
	if err := k.readers.Wait(); err != nil {
		log.Printf("kernel[%s]: reader task exited: %v", k.id, err)
	}

	removeConnectionFile(k.connFile)

	k.mu.Lock()
	k.queue = nil
	k.executing = ""
	k.mu.Unlock()
	k.cellMap.clear()
	k.setStatus(StatusDead)
}

// Drop performs the same cleanup as Shutdown but is meant to be called
// synchronously from room teardown (spec.md §4.G Drop); the
// implementation is identical since Shutdown is already synchronous
// up to subprocess signal delivery.
func (k *RoomKernel) Drop() {
	k.Shutdown()
}
