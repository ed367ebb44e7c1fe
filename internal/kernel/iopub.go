package kernel

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/launix-de/notebookd/internal/outputs"
)

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type executeInputContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type displayDataContent struct {
	Data      map[string]json.RawMessage `json:"data"`
	Metadata  map[string]json.RawMessage `json:"metadata"`
	Transient *outputs.Transient         `json:"transient,omitempty"`
}

type executeResultContent struct {
	ExecutionCount int                        `json:"execution_count"`
	Data           map[string]json.RawMessage `json:"data"`
	Metadata       map[string]json.RawMessage `json:"metadata"`
}

type errorContent struct {
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// runIopubReader implements spec.md §4.G's iopub reader task. It runs
// under the kernel's errgroup.Group. On a recv error it closes the
// kernel's sockets, which makes the shell reader's blocking recv fail
// too, and returns the error.
func (k *RoomKernel) runIopubReader() error {
	for {
		env, _, err := k.sockets.iopub.recv()
		select {
		case <-k.stop:
			return nil
		default:
		}
		if err != nil {
			k.sockets.Close() // forces the shell reader's blocking recv to fail too
			return fmt.Errorf("kernel[%s]: iopub recv: %w", k.id, err)
		}
		k.handleIopubMessage(env)
	}
}

func (k *RoomKernel) handleIopubMessage(env wireEnvelope) {
	cellID, haveCellID := k.cellMap.lookup(env.ParentHeader.MsgID)

	switch env.Header.MsgType {
	case "status":
		var c statusContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return
		}
		if c.ExecutionState == "idle" && haveCellID {
			k.postQueueCommand(ExecutionDoneCommand{CellID: cellID})
		}

	case "execute_input":
		if !haveCellID {
			return
		}
		var c executeInputContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return
		}
		k.emit(ExecutionStartedEvent{CellID: cellID, ExecutionCount: c.ExecutionCount})

	case "stream":
		if !haveCellID {
			return
		}
		var c streamContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return
		}
		k.ingestOutput(cellID, outputs.RawOutput{OutputType: "stream", Name: c.Name, Text: c.Text})

	case "display_data":
		if !haveCellID {
			return
		}
		var c displayDataContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return
		}
		k.ingestOutput(cellID, outputs.RawOutput{OutputType: "display_data", Data: c.Data, Metadata: c.Metadata, Transient: c.Transient})

	case "execute_result":
		if !haveCellID {
			return
		}
		var c executeResultContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return
		}
		ec := c.ExecutionCount
		k.ingestOutput(cellID, outputs.RawOutput{OutputType: "execute_result", Data: c.Data, Metadata: c.Metadata, ExecutionCount: &ec})

	case "update_display_data":
		var c displayDataContent
		if err := json.Unmarshal(env.Content, &c); err != nil || c.Transient == nil {
			return
		}
		k.applyDisplayUpdate(c.Transient.DisplayID, c.Data, c.Metadata)

	case "error":
		if !haveCellID {
			return
		}
		var c errorContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return
		}
		k.ingestOutput(cellID, outputs.RawOutput{OutputType: "error", Ename: c.Ename, Evalue: c.Evalue, Traceback: c.Traceback})
		k.postQueueCommand(CellErrorCommand{CellID: cellID})

	case "comm_open", "comm_msg", "comm_close":
		k.emit(CommEvent{MsgType: env.Header.MsgType, Content: env.Content, Buffers: env.Buffers})
	}
}

// ingestOutput implements the common output-ingestion path shared by
// stream/display_data/execute_result/error (spec.md §4.G).
func (k *RoomKernel) ingestOutput(cellID string, raw outputs.RawOutput) {
	hash, _, err := k.outputBuilder.BuildManifest(raw)
	if err != nil {
		log.Printf("kernel[%s]: build output manifest for cell %s: %v", k.id, cellID, err)
		return
	}
	k.doc.AppendOutput(cellID, hash)
	k.emit(OutputEvent{CellID: cellID, Type: raw.OutputType, Hash: hash})
	if k.persist != nil {
		if err := k.persist(); err != nil {
			log.Printf("kernel[%s]: persist notebook doc: %v", k.id, err)
		}
	}
}

// applyDisplayUpdate implements spec.md §4.C's update-by-display-id
// path as invoked from the iopub reader.
func (k *RoomKernel) applyDisplayUpdate(displayID string, data, metadata map[string]json.RawMessage) {
	docRefs := k.doc.GetAllOutputs()
	existing := make([]outputs.DocOutputRef, len(docRefs))
	for i, r := range docRefs {
		existing[i] = outputs.DocOutputRef{CellID: r.CellID, Index: r.Index, Hash: r.Ref}
	}

	cellID, index, newHash, found, err := k.outputBuilder.UpdateByDisplayID(displayID, data, metadata, existing)
	if err != nil {
		log.Printf("kernel[%s]: update display_id %s: %v", k.id, displayID, err)
		return
	}
	if !found {
		return
	}
	k.doc.ReplaceOutput(cellID, index, newHash)
	k.emit(DisplayUpdateEvent{DisplayID: displayID, Data: data, Metadata: metadata})
	if k.persist != nil {
		if err := k.persist(); err != nil {
			log.Printf("kernel[%s]: persist notebook doc: %v", k.id, err)
		}
	}
}
