package room

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/notebookd/internal/notebookdoc"
)

// Registry is the notebook_id -> Room map of spec.md §4.H. Reads go
// through the lock-free NonLockingReadMap (rooms are looked up on
// every sync-server connection and every RPC, but created rarely);
// the create path is additionally serialized by createMu so two
// concurrent get_or_create calls for the same fresh notebook_id don't
// each load/construct a Doc and race to install it.
type Registry struct {
	rooms    NonLockingReadMap.NonLockingReadMap[Room, string]
	createMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{rooms: NonLockingReadMap.New[Room, string]()}
}

// GetOrCreate implements spec.md §4.H's get_or_create: return the
// existing room if present, otherwise load-or-create its NotebookDoc
// from docsDir (the §4.D filename rule) and install a fresh Room.
func (reg *Registry) GetOrCreate(notebookID, docsDir string) (*Room, error) {
	if r := reg.rooms.Get(notebookID); r != nil {
		return r, nil
	}

	reg.createMu.Lock()
	defer reg.createMu.Unlock()
	if r := reg.rooms.Get(notebookID); r != nil {
		return r, nil
	}

	path := filepath.Join(docsDir, notebookdoc.FileName(notebookID))
	doc, err := notebookdoc.LoadOrCreate(docsDir, notebookID)
	if err != nil {
		return nil, fmt.Errorf("room: load_or_create %s: %w", path, err)
	}

	r := newRoom(notebookID, doc)
	reg.rooms.Set(r)
	return r, nil
}

// Get looks up a room without creating one.
func (reg *Registry) Get(notebookID string) (*Room, bool) {
	r := reg.rooms.Get(notebookID)
	return r, r != nil
}

// List returns every currently-registered room, for ListRooms.
func (reg *Registry) List() []*Room {
	ptrs := reg.rooms.GetAll()
	out := make([]*Room, len(ptrs))
	for i, p := range ptrs {
		out[i] = p
	}
	return out
}

// Evict tears down and removes a room, e.g. when its last peer
// disconnects and the operator has configured eager eviction (spec.md
// §4.H leaves retention vs. eviction as an implementation choice).
func (reg *Registry) Evict(notebookID string) {
	reg.createMu.Lock()
	defer reg.createMu.Unlock()
	if r := reg.rooms.Get(notebookID); r != nil {
		r.Close()
		reg.rooms.Remove(notebookID)
	}
}
