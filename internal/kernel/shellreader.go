package kernel

import (
	"encoding/json"
	"fmt"

	"github.com/launix-de/notebookd/internal/outputs"
)

type pagePayload struct {
	Source string                     `json:"source"`
	Data   map[string]json.RawMessage `json:"data"`
}

type executeReplyContent struct {
	Status         string        `json:"status"`
	ExecutionCount int           `json:"execution_count"`
	Payload        []pagePayload `json:"payload"`
}

type historyReplyContent struct {
	Status  string            `json:"status"`
	History []json.RawMessage `json:"history"`
}

// runShellReader implements spec.md §4.G's shell reader task, run
// under the same errgroup.Group as the iopub reader.
func (k *RoomKernel) runShellReader() error {
	for {
		env, _, err := k.sockets.shell.recv()
		select {
		case <-k.stop:
			return nil
		default:
		}
		if err != nil {
			k.sockets.Close() // forces the iopub reader's blocking recv to fail too
			return fmt.Errorf("kernel[%s]: shell recv: %w", k.id, err)
		}
		k.handleShellMessage(env)
	}
}

func (k *RoomKernel) handleShellMessage(env wireEnvelope) {
	switch env.Header.MsgType {
	case "execute_reply":
		k.handleExecuteReply(env)
	case "history_reply":
		k.handleHistoryReply(env)
	}
}

func (k *RoomKernel) handleExecuteReply(env wireEnvelope) {
	var c executeReplyContent
	if err := json.Unmarshal(env.Content, &c); err != nil {
		return
	}
	cellID, haveCellID := k.cellMap.lookup(env.ParentHeader.MsgID)
	if !haveCellID {
		return
	}

	for _, page := range c.Payload {
		if page.Source != "page" {
			continue
		}
		k.ingestOutput(cellID, outputs.RawOutput{
			OutputType: "display_data",
			Data:       page.Data,
		})
	}

	if c.Status != "ok" {
		k.postQueueCommand(ExecutionDoneCommand{CellID: cellID})
	}
}

// decodeHistoryEntry normalizes one history_reply entry, which the
// wire protocol encodes as either [session, line, source] or
// [session, line, [source, output]].
func decodeHistoryEntry(raw json.RawMessage) (HistoryEntry, bool) {
	var triple []json.RawMessage
	if err := json.Unmarshal(raw, &triple); err != nil || len(triple) != 3 {
		return HistoryEntry{}, false
	}
	var entry HistoryEntry
	if err := json.Unmarshal(triple[0], &entry.Session); err != nil {
		return HistoryEntry{}, false
	}
	if err := json.Unmarshal(triple[1], &entry.Line); err != nil {
		return HistoryEntry{}, false
	}
	// Input-only variant: source is a bare string.
	if err := json.Unmarshal(triple[2], &entry.Source); err == nil {
		return entry, true
	}
	// Input+output variant: [source, output].
	var pair []json.RawMessage
	if err := json.Unmarshal(triple[2], &pair); err != nil || len(pair) < 1 {
		return HistoryEntry{}, false
	}
	if err := json.Unmarshal(pair[0], &entry.Source); err != nil {
		return HistoryEntry{}, false
	}
	return entry, true
}

func (k *RoomKernel) handleHistoryReply(env wireEnvelope) {
	k.pendingHistoryMu.Lock()
	ch, ok := k.pendingHistory[env.ParentHeader.MsgID]
	if ok {
		delete(k.pendingHistory, env.ParentHeader.MsgID)
	}
	k.pendingHistoryMu.Unlock()
	if !ok {
		return
	}

	var c historyReplyContent
	if err := json.Unmarshal(env.Content, &c); err != nil {
		ch <- nil
		return
	}
	entries := make([]HistoryEntry, 0, len(c.History))
	for _, raw := range c.History {
		if entry, ok := decodeHistoryEntry(raw); ok {
			entries = append(entries, entry)
		}
	}
	ch <- entries
}
