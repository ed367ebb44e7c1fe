package kernel

import "sync"

// cellIDMap tracks msg_id -> cell_id for in-flight executions. It is
// guarded by its own small mutex rather than the kernel's broader
// state lock, since both the iopub and shell readers consult it
// concurrently with the sync-server event loop (spec.md §5).
//
// Invariant: at most one entry maps to a given cell_id at any moment.
// Re-execution removes the cell_id's prior entry before inserting the
// new one; cleanup never happens eagerly on execute_reply, because
// shell's execute_reply races iopub's status=idle and both still need
// the mapping (spec.md §4.G, §5).
type cellIDMap struct {
	mu          sync.Mutex
	msgToCell   map[string]string
	cellToMsg   map[string]string
}

func newCellIDMap() *cellIDMap {
	return &cellIDMap{
		msgToCell: map[string]string{},
		cellToMsg: map[string]string{},
	}
}

// put removes any existing mapping for cellID (wherever its msg_id
// was) before inserting (msgID -> cellID).
func (m *cellIDMap) put(msgID, cellID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prevMsg, ok := m.cellToMsg[cellID]; ok {
		delete(m.msgToCell, prevMsg)
	}
	m.msgToCell[msgID] = cellID
	m.cellToMsg[cellID] = msgID
}

// lookup resolves cell_id = cell_id_map[parent_header.msg_id].
func (m *cellIDMap) lookup(msgID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cellID, ok := m.msgToCell[msgID]
	return cellID, ok
}

func (m *cellIDMap) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgToCell = map[string]string{}
	m.cellToMsg = map[string]string{}
}
