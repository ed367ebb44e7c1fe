package kernel

import "encoding/json"

// Status is the kernel's lifecycle state, broadcast on every
// transition (spec.md §4.G).
type Status string

const (
	StatusStarting     Status = "starting"
	StatusIdle         Status = "idle"
	StatusBusy         Status = "busy"
	StatusShuttingDown Status = "shutting_down"
	StatusDead         Status = "dead"
)

// Event is broadcast to every peer connected to the kernel's room
// (spec.md §4.G's iopub/shell reader descriptions).
type Event interface{ eventType() string }

type KernelStatusEvent struct{ Status Status }
type ExecutionStartedEvent struct {
	CellID         string
	ExecutionCount int
}
type OutputEvent struct {
	CellID string
	Type   string
	Hash   string
}
type DisplayUpdateEvent struct {
	DisplayID string
	Data      map[string]json.RawMessage
	Metadata  map[string]json.RawMessage
}
type CommEvent struct {
	MsgType string
	Content []byte
	Buffers [][]byte
}
// QueueChangedEvent mirrors the kernel's Option<cell_id> executing
// field as an empty string for None, matching RoomKernel's own
// internal convention.
type QueueChangedEvent struct {
	Executing string
	Queue     []string
}
type ExecutionDoneEvent struct{ CellID string }

func (KernelStatusEvent) eventType() string    { return "kernel_status" }
func (ExecutionStartedEvent) eventType() string { return "execution_started" }
func (OutputEvent) eventType() string           { return "output" }
func (DisplayUpdateEvent) eventType() string    { return "display_update" }
func (CommEvent) eventType() string             { return "comm" }
func (QueueChangedEvent) eventType() string     { return "queue_changed" }
func (ExecutionDoneEvent) eventType() string    { return "execution_done" }

// QueueCommand is posted from the iopub/shell reader tasks back to
// the sync server's event loop, which owns queue/executing mutation
// (spec.md §5: "the queue and executing are mutated only by the
// sync-server event loop").
type QueueCommand interface{ queueCommandType() string }

type ExecutionDoneCommand struct{ CellID string }
type CellErrorCommand struct{ CellID string }

func (ExecutionDoneCommand) queueCommandType() string { return "execution_done" }
func (CellErrorCommand) queueCommandType() string     { return "cell_error" }
