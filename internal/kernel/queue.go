package kernel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type executeRequestContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

// QueueCell implements spec.md §4.G's queue_cell: idempotent if the
// cell is already executing or already queued, otherwise appended and
// process_next is triggered.
func (k *RoomKernel) QueueCell(cellID, code string) {
	k.mu.Lock()
	if k.executing == cellID {
		k.mu.Unlock()
		return
	}
	for _, id := range k.queue {
		if id == cellID {
			k.mu.Unlock()
			return
		}
	}
	k.queue = append(k.queue, cellID)
	snapshot := append([]string(nil), k.queue...)
	executing := k.executing
	k.mu.Unlock()

	k.emit(QueueChangedEvent{Executing: executing, Queue: snapshot})
	k.processNext()
}

// processNext implements spec.md §4.G's process_next.
func (k *RoomKernel) processNext() {
	k.mu.Lock()
	if k.executing != "" || len(k.queue) == 0 {
		k.mu.Unlock()
		return
	}
	cellID := k.queue[0]
	k.queue = k.queue[1:]
	k.executing = cellID
	k.mu.Unlock()

	cell, _ := k.doc.GetCell(cellID)
	source := cell.Source

	msgID := uuid.New().String()
	// Remove prior mapping for this cell_id before inserting the new
	// one; only one mapping per cell_id may exist at a time (spec.md
	// §4.G, §5).
	k.cellMap.put(msgID, cellID)

	content, err := json.Marshal(executeRequestContent{
		Code:            source,
		Silent:          false,
		StoreHistory:    true,
		UserExpressions: map[string]any{},
		AllowStdin:      false,
		StopOnError:     false,
	})
	if err != nil {
		return
	}
	header := wireHeader{
		MsgID: msgID, Session: k.sessionID, Username: "notebookd",
		MsgType: "execute_request", Version: "5.3",
	}
	if err := k.sockets.shell.send(nil, wireEnvelope{Header: header, Content: content}); err != nil {
		// Treat a send failure as an immediate done so the queue isn't
		// wedged forever on a dead kernel.
		k.ExecutionDone(cellID)
	}
}

// ExecutionDone implements spec.md §4.G's execution_done, called from
// the sync server in response to an ExecutionDoneCommand.
func (k *RoomKernel) ExecutionDone(cellID string) {
	k.mu.Lock()
	if k.executing != cellID {
		k.mu.Unlock()
		return
	}
	k.executing = ""
	queueSnapshot := append([]string(nil), k.queue...)
	k.mu.Unlock()

	k.emit(ExecutionDoneEvent{CellID: cellID})
	k.emit(QueueChangedEvent{Executing: "", Queue: queueSnapshot})
	k.processNext()
}

// ClearQueue implements spec.md §4.G's clear_queue, extended for the
// stop-on-error path (spec.md §4.I, §8 scenario 6): an error on the
// executing cell ends its execution too, so both queue and executing
// are reset and no further cell is dispatched.
func (k *RoomKernel) ClearQueue() {
	k.mu.Lock()
	k.queue = nil
	k.executing = ""
	k.mu.Unlock()
	k.emit(QueueChangedEvent{Executing: "", Queue: nil})
}

// Interrupt implements spec.md §4.G's interrupt: open a control-channel
// client and send interrupt_request.
func (k *RoomKernel) Interrupt() error {
	content, _ := json.Marshal(map[string]string{})
	header := wireHeader{
		MsgID: uuid.New().String(), Session: k.sessionID, Username: "notebookd",
		MsgType: "interrupt_request", Version: "5.3",
	}
	return k.sockets.control.send(nil, wireEnvelope{Header: header, Content: content})
}

// HistoryEntry is the normalized shape for both input-only and
// input+output history_reply variants (spec.md §4.G).
type HistoryEntry struct {
	Session int    `json:"session"`
	Line    int    `json:"line"`
	Source  string `json:"source"`
}

// GetHistory implements spec.md §4.G's get_history: send
// history_request, register a oneshot keyed by msg_id, await with a
// 5s timeout.
func (k *RoomKernel) GetHistory(pattern string, n int, unique bool) ([]HistoryEntry, error) {
	msgID := uuid.New().String()
	ch := make(chan []HistoryEntry, 1)
	k.pendingHistoryMu.Lock()
	k.pendingHistory[msgID] = ch
	k.pendingHistoryMu.Unlock()

	content, _ := json.Marshal(map[string]any{
		"output":  false,
		"raw":     true,
		"hist_access_type": "search",
		"pattern": pattern,
		"n":       n,
		"unique":  unique,
	})
	header := wireHeader{
		MsgID: msgID, Session: k.sessionID, Username: "notebookd",
		MsgType: "history_request", Version: "5.3",
	}
	if err := k.sockets.shell.send(nil, wireEnvelope{Header: header, Content: content}); err != nil {
		k.pendingHistoryMu.Lock()
		delete(k.pendingHistory, msgID)
		k.pendingHistoryMu.Unlock()
		return nil, fmt.Errorf("kernel: send history_request: %w", err)
	}

	select {
	case entries := <-ch:
		return entries, nil
	case <-time.After(historyTimeout):
		k.pendingHistoryMu.Lock()
		delete(k.pendingHistory, msgID)
		k.pendingHistoryMu.Unlock()
		return nil, fmt.Errorf("kernel: history_request timed out after %s", historyTimeout)
	}
}
