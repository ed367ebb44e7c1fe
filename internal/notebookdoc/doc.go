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

// Package notebookdoc wraps an Automerge document implementing the
// NotebookDoc schema from spec.md §3: a list of cells, each carrying
// a Text-CRDT source, plus a flat metadata map. Every exported method
// that touches the Automerge document takes and releases its read-write lock
// (SPEC_FULL.md §5), mirroring the teacher's SharedResource lifecycle
// (storage/shared_resource.go) for lazily-loaded, lock-guarded state.
package notebookdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/text/unicode/norm"
)

// CellType enumerates the three nbformat cell kinds.
type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
)

// Cell is the read-side snapshot of one cell (spec.md's CellSnapshot).
type Cell struct {
	ID             string   `json:"id"`
	CellType       CellType `json:"cell_type"`
	Source         string   `json:"source"`
	ExecutionCount string   `json:"execution_count"` // "null" or a decimal string
	Outputs        []string `json:"outputs"`
}

// Doc is a single notebook's Automerge document plus the lock that
// makes it safe to share between the sync server's event loop and
// the kernel manager's iopub reader (SPEC_FULL.md §5).
type Doc struct {
	mu         sync.RWMutex
	am         *automerge.Doc
	notebookID string
}

// FileName implements spec.md §4.D's document-filename convention:
// SHA-256(notebook_id) hex plus extension, because notebook_id may be
// an arbitrary path or identifier unsafe to use as a filename.
func FileName(notebookID string) string {
	sum := sha256.Sum256([]byte(notebookID))
	return hex.EncodeToString(sum[:]) + ".automerge"
}

// New creates a fresh, empty document for notebookID.
func New(notebookID string) *Doc {
	d := &Doc{am: automerge.New(), notebookID: notebookID}
	root := d.am.RootMap()
	must(root.Set("notebook_id", notebookID))
	must(root.Set("cells", automerge.NewList()))
	must(root.Set("metadata", automerge.NewMap()))
	d.commit("init")
	return d
}

// Load parses a previously-saved document binary.
func Load(notebookID string, data []byte) (*Doc, error) {
	am, err := automerge.Load(data)
	if err != nil {
		return nil, fmt.Errorf("notebookdoc: load: %w", err)
	}
	return &Doc{am: am, notebookID: notebookID}, nil
}

// LoadOrCreate implements spec.md §4.D's lifecycle rule: missing file
// creates fresh; unparseable file is quarantined as "{path}.corrupt"
// and a fresh document takes its place.
func LoadOrCreate(dir, notebookID string) (*Doc, error) {
	path := filepath.Join(dir, FileName(notebookID))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(notebookID), nil
		}
		return nil, fmt.Errorf("notebookdoc: read %s: %w", path, err)
	}
	data, err := lz4Decompress(raw)
	if err != nil {
		return quarantineAndCreate(path, notebookID, err)
	}
	doc, err := Load(notebookID, data)
	if err != nil {
		return quarantineAndCreate(path, notebookID, err)
	}
	return doc, nil
}

func quarantineAndCreate(path, notebookID string, cause error) (*Doc, error) {
	if err := os.Rename(path, path+".corrupt"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("notebookdoc: quarantine %s after %v: %w", path, cause, err)
	}
	return New(notebookID), nil
}

// Save serializes the document to its Automerge binary form.
func (d *Doc) Save() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.am.Save()
}

// Persist writes the document's LZ4-framed Automerge binary to
// {dir}/{FileName(notebook_id)}. LZ4 is used here rather than xz
// (blobstore's choice) because this file is rewritten on every
// mutation and favors write latency over ratio (SPEC_FULL.md §4.D).
func (d *Doc) Persist(dir string) error {
	data := d.Save()
	compressed := lz4Compress(data)
	path := filepath.Join(dir, FileName(d.notebookID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0640); err != nil {
		return fmt.Errorf("notebookdoc: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("notebookdoc: rename into place %s: %w", path, err)
	}
	return nil
}

func lz4Compress(data []byte) []byte {
	dst := make([]byte, lz4.CompressBlockBound(len(data))+8)
	var meta [8]byte
	for i := range meta {
		meta[i] = byte(len(data) >> (8 * i))
	}
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, dst[8:])
	if err != nil || n == 0 {
		// incompressible or tiny: store raw, flagged by a zero length prefix.
		out := make([]byte, 8+len(data))
		copy(out[8:], data)
		return out
	}
	copy(dst[:8], meta[:])
	return dst[:8+n]
}

func lz4Decompress(payload []byte) ([]byte, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("notebookdoc: truncated lz4 frame")
	}
	var origLen int
	for i := 0; i < 8; i++ {
		origLen |= int(payload[i]) << (8 * i)
	}
	body := payload[8:]
	if origLen == 0 {
		return append([]byte(nil), body...), nil
	}
	dst := make([]byte, origLen)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

func (d *Doc) commit(msg string) {
	d.am.Commit(msg)
}

func must(err error) {
	if err != nil {
		panic("notebookdoc: unexpected automerge error: " + err.Error())
	}
}

func (d *Doc) root() *automerge.Map {
	return d.am.RootMap()
}

func (d *Doc) cellsList() *automerge.List {
	v, err := d.root().Get("cells")
	must(err)
	l, err := v.List()
	must(err)
	return l
}

// NotebookID returns the document's notebook_id, as recorded at creation.
func (d *Doc) NotebookID() string {
	return d.notebookID
}

// CellCount returns the number of cells.
func (d *Doc) CellCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cellsList().Len()
}

func (d *Doc) readCellAt(i int) (Cell, error) {
	v, err := d.cellsList().Get(i)
	if err != nil {
		return Cell{}, err
	}
	m, err := v.Map()
	if err != nil {
		return Cell{}, err
	}
	return readCellMap(m)
}

func readCellMap(m *automerge.Map) (Cell, error) {
	id, err := getStr(m, "id")
	if err != nil {
		return Cell{}, err
	}
	cellType, err := getStr(m, "cell_type")
	if err != nil {
		return Cell{}, err
	}
	execCount, err := getStr(m, "execution_count")
	if err != nil {
		return Cell{}, err
	}
	sourceVal, err := m.Get("source")
	if err != nil {
		return Cell{}, err
	}
	text, err := sourceVal.Text()
	if err != nil {
		return Cell{}, err
	}
	source, err := text.Get()
	if err != nil {
		return Cell{}, err
	}
	outputsVal, err := m.Get("outputs")
	if err != nil {
		return Cell{}, err
	}
	outputsList, err := outputsVal.List()
	if err != nil {
		return Cell{}, err
	}
	outputs := make([]string, outputsList.Len())
	for i := 0; i < outputsList.Len(); i++ {
		ov, err := outputsList.Get(i)
		if err != nil {
			return Cell{}, err
		}
		s, err := ov.Str()
		if err != nil {
			return Cell{}, err
		}
		outputs[i] = s
	}
	return Cell{
		ID:             id,
		CellType:       CellType(cellType),
		Source:         source,
		ExecutionCount: execCount,
		Outputs:        outputs,
	}, nil
}

func getStr(m *automerge.Map, key string) (string, error) {
	v, err := m.Get(key)
	if err != nil {
		return "", err
	}
	return v.Str()
}

// GetCells returns a snapshot of every cell, in document order.
func (d *Doc) GetCells() []Cell {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := d.cellsList()
	cells := make([]Cell, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		c, err := d.readCellAt(i)
		must(err)
		cells = append(cells, c)
	}
	return cells
}

// GetCell returns the cell with the given id, if present.
func (d *Doc) GetCell(id string) (Cell, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return Cell{}, false
	}
	c, err := d.readCellAt(idx)
	must(err)
	return c, true
}

func (d *Doc) findCellIndexLocked(id string) (int, bool) {
	list := d.cellsList()
	for i := 0; i < list.Len(); i++ {
		c, err := d.readCellAt(i)
		must(err)
		if c.ID == id {
			return i, true
		}
	}
	return 0, false
}

// AddCell inserts a new cell at index, clamped to [0, len]. Duplicate
// ids are not rejected (spec.md §3: "not enforced, but document-insert
// ops check before creation" — callers needing that guarantee check
// GetCell first).
func (d *Doc) AddCell(index int, id string, cellType CellType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.cellsList()
	if index < 0 {
		index = 0
	}
	if index > list.Len() {
		index = list.Len()
	}
	cellMap := automerge.NewMap()
	must(list.Insert(index, cellMap))
	v, err := list.Get(index)
	must(err)
	m, err := v.Map()
	must(err)
	must(m.Set("id", id))
	must(m.Set("cell_type", string(cellType)))
	must(m.Set("source", automerge.NewText("")))
	must(m.Set("execution_count", "null"))
	must(m.Set("outputs", automerge.NewList()))
	d.commit(fmt.Sprintf("add_cell %s", id))
}

// DeleteCell removes the cell with the given id, returning false if
// no such cell exists (a no-op per spec.md §4.D).
func (d *Doc) DeleteCell(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return false
	}
	must(d.cellsList().Delete(idx))
	d.commit(fmt.Sprintf("delete_cell %s", id))
	return true
}

// UpdateSource diffs newText against the cell's current Text CRDT and
// emits only the splice operations needed to converge, so concurrent
// edits from other peers merge character-by-character rather than
// last-writer-wins. Returns false if the cell does not exist or the
// text is unchanged (spec.md's boundary behavior: identical string is
// a no-op, no CRDT op emitted).
func (d *Doc) UpdateSource(id, newText string) bool {
	// Editors on different platforms hand back NFD or NFC for the same
	// keystrokes; normalizing before diffing keeps two peers editing
	// the same accented character converging to one Text CRDT op
	// stream instead of fighting over equivalent byte sequences.
	newText = norm.NFC.String(newText)

	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return false
	}
	v, err := d.cellsList().Get(idx)
	must(err)
	m, err := v.Map()
	must(err)
	sourceVal, err := m.Get("source")
	must(err)
	text, err := sourceVal.Text()
	must(err)
	current, err := text.Get()
	must(err)
	if current == newText {
		return false
	}
	must(text.UpdateText(newText))
	d.commit(fmt.Sprintf("update_source %s", id))
	return true
}

// SetExecutionCount sets a cell's execution_count ("null" or a
// decimal string).
func (d *Doc) SetExecutionCount(id, value string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return false
	}
	v, err := d.cellsList().Get(idx)
	must(err)
	m, err := v.Map()
	must(err)
	must(m.Set("execution_count", value))
	d.commit(fmt.Sprintf("set_execution_count %s", id))
	return true
}

func (d *Doc) cellOutputsLocked(idx int) (*automerge.List, error) {
	v, err := d.cellsList().Get(idx)
	if err != nil {
		return nil, err
	}
	m, err := v.Map()
	if err != nil {
		return nil, err
	}
	ov, err := m.Get("outputs")
	if err != nil {
		return nil, err
	}
	return ov.List()
}

// AppendOutput appends ref (a manifest hash or legacy raw JSON
// string) to the cell's outputs list.
func (d *Doc) AppendOutput(id, ref string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return false
	}
	outputs, err := d.cellOutputsLocked(idx)
	must(err)
	must(outputs.Append(ref))
	d.commit(fmt.Sprintf("append_output %s", id))
	return true
}

// SetOutputs replaces a cell's entire outputs list.
func (d *Doc) SetOutputs(id string, refs []string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return false
	}
	v, err := d.cellsList().Get(idx)
	must(err)
	m, err := v.Map()
	must(err)
	must(m.Set("outputs", automerge.NewList()))
	ov, err := m.Get("outputs")
	must(err)
	outputs, err := ov.List()
	must(err)
	for _, ref := range refs {
		must(outputs.Append(ref))
	}
	d.commit(fmt.Sprintf("set_outputs %s", id))
	return true
}

// ClearOutputs empties a cell's outputs list, used before re-execution.
func (d *Doc) ClearOutputs(id string) bool {
	return d.SetOutputs(id, nil)
}

// ReplaceOutput overwrites the output at idx with new, used by the
// display-id update path.
func (d *Doc) ReplaceOutput(cellID string, idx int, newRef string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cellIdx, ok := d.findCellIndexLocked(cellID)
	if !ok {
		return false
	}
	outputs, err := d.cellOutputsLocked(cellIdx)
	must(err)
	if idx < 0 || idx >= outputs.Len() {
		return false
	}
	must(outputs.Set(idx, newRef))
	d.commit(fmt.Sprintf("replace_output %s[%d]", cellID, idx))
	return true
}

// OutputRef identifies one entry in a cell's outputs list.
type OutputRef struct {
	CellID string
	Index  int
	Ref    string
}

// GetAllOutputs returns every output reference across every cell, in
// document order, used by the display-id update scan.
func (d *Doc) GetAllOutputs() []OutputRef {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var all []OutputRef
	list := d.cellsList()
	for i := 0; i < list.Len(); i++ {
		c, err := d.readCellAt(i)
		must(err)
		for j, ref := range c.Outputs {
			all = append(all, OutputRef{CellID: c.ID, Index: j, Ref: ref})
		}
	}
	return all
}

// UpsertStreamOutput implements spec.md §4.C's stream upsert: if
// knownIndex is within the cell's outputs, overwrite that entry (its
// current output type is not checked); otherwise append a new entry.
// Returns (wasUpdate, idx).
func (d *Doc) UpsertStreamOutput(id string, ref string, knownIndex int) (bool, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.findCellIndexLocked(id)
	if !ok {
		return false, -1
	}
	outputs, err := d.cellOutputsLocked(idx)
	must(err)
	if knownIndex >= 0 && knownIndex < outputs.Len() {
		must(outputs.Set(knownIndex, ref))
		d.commit(fmt.Sprintf("upsert_stream_output %s[%d]", id, knownIndex))
		return true, knownIndex
	}
	must(outputs.Append(ref))
	d.commit(fmt.Sprintf("upsert_stream_output %s append", id))
	return false, outputs.Len() - 1
}

// GetMetadata reads a document-level metadata value.
func (d *Doc) GetMetadata(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, err := d.root().Get("metadata")
	must(err)
	m, err := v.Map()
	must(err)
	val, err := m.Get(key)
	if err != nil {
		return "", false
	}
	s, err := val.Str()
	if err != nil {
		return "", false
	}
	return s, true
}

// SetMetadata writes a document-level metadata value, creating the
// metadata map if absent (New creates it; a document loaded from disk
// may lack it).
func (d *Doc) SetMetadata(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.root().Get("metadata")
	if err != nil {
		must(d.root().Set("metadata", automerge.NewMap()))
		v, err = d.root().Get("metadata")
		must(err)
	}
	m, err := v.Map()
	must(err)
	must(m.Set(key, value))
	d.commit(fmt.Sprintf("set_metadata %s", key))
}

// MarshalSnapshot renders the document as plain JSON, used only for
// diagnostics (the debug console's "inspect" command).
func (d *Doc) MarshalSnapshot() ([]byte, error) {
	cells := d.GetCells()
	return json.MarshalIndent(struct {
		NotebookID string `json:"notebook_id"`
		Cells      []Cell `json:"cells"`
	}{d.notebookID, cells}, "", "  ")
}
