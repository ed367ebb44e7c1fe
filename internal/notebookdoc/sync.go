package notebookdoc

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// PeerState wraps one peer connection's Automerge sync state. Each
// notebook-sync connection keeps exactly one of these for the
// lifetime of the connection (spec.md §4.D: "each peer maintains a
// per-connection peer_state").
type PeerState struct {
	am *automerge.SyncState
}

// NewPeerState creates a fresh sync state against doc for a newly
// joined peer (no prior shared history is assumed).
func (d *Doc) NewPeerState() *PeerState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &PeerState{am: automerge.NewSyncState(d.am)}
}

// GenerateSyncMessage produces the next outgoing sync message for
// this peer, or (nil, false) if the peer is already caught up.
// Mutation happens-before the message is generated (SPEC_FULL.md §5's
// ordering guarantee: a peer applying our message can assume our
// write was durable on our side).
func (d *Doc) GenerateSyncMessage(peer *PeerState) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, hasMsg := peer.am.GenerateMessage()
	if !hasMsg {
		return nil, false
	}
	return msg.Bytes(), true
}

// ReceiveSyncMessage applies an incoming sync message from peer,
// mutating the document.
func (d *Doc) ReceiveSyncMessage(peer *PeerState, raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, err := automerge.DecodeSyncMessage(raw)
	if err != nil {
		return fmt.Errorf("notebookdoc: decode sync message: %w", err)
	}
	if err := peer.am.ReceiveMessage(msg); err != nil {
		return fmt.Errorf("notebookdoc: apply sync message: %w", err)
	}
	return nil
}

// CatchUp drains outgoing sync messages against peer until none
// remain, used for the initial catch-up on peer join (spec.md §4.I).
func (d *Doc) CatchUp(peer *PeerState, send func([]byte) error) error {
	for {
		msg, ok := d.GenerateSyncMessage(peer)
		if !ok {
			return nil
		}
		if err := send(msg); err != nil {
			return fmt.Errorf("notebookdoc: catch-up send: %w", err)
		}
	}
}
