package syncserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/launix-de/notebookd/internal/framing"
	"github.com/launix-de/notebookd/internal/room"
)

func newTestNotebookHub(t *testing.T) *Hub {
	t.Helper()
	return &Hub{Rooms: room.NewRegistry(), DocsDir: t.TempDir()}
}

// runJoin starts HandleNotebookSync in the background and returns the
// client side of the pipe plus a finish func that closes the
// connection and waits for the handler goroutine to return. Closing
// (rather than merely cancelling the context) is what unblocks a
// handler parked on a pipe Write the test never reads further.
func runJoin(t *testing.T, h *Hub, hs framing.Handshake) (client net.Conn, finish func()) {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.HandleNotebookSync(ctx, server, hs) }()
	return client, func() {
		cancel()
		client.Close()
		<-done
	}
}

func TestHandleNotebookSyncV2SendsCapabilities(t *testing.T) {
	h := newTestNotebookHub(t)
	client, finish := runJoin(t, h, framing.Handshake{
		Kind: framing.ChannelNotebookSync, NotebookID: "nb-1", Protocol: framing.ProtocolV2,
	})
	defer finish()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := framing.ReadFrame(client, 0)
	if err != nil {
		t.Fatalf("read capabilities frame: %v", err)
	}
	caps, ok := framing.DecodeCapabilities(raw)
	if !ok || caps.Protocol != framing.ProtocolV2 {
		t.Fatalf("expected v2 capabilities frame, got %+v ok=%v", caps, ok)
	}
}

func TestHandleNotebookSyncV1NoCapabilities(t *testing.T) {
	h := newTestNotebookHub(t)
	client, finish := runJoin(t, h, framing.Handshake{
		Kind: framing.ChannelNotebookSync, NotebookID: "nb-2",
	})
	defer finish()

	// A v1 (legacy) peer never receives a capabilities announcement —
	// whatever arrives first is a raw Automerge sync message, which is
	// not valid JSON and so never decodes as one.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := framing.ReadFrame(client, 0)
	if err != nil {
		t.Fatalf("expected an initial sync message, got error: %v", err)
	}
	if _, ok := framing.DecodeCapabilities(raw); ok {
		t.Fatalf("v1 connection should never receive a capabilities frame")
	}
}

func TestRoomCreatedOnJoin(t *testing.T) {
	h := newTestNotebookHub(t)
	client, finish := runJoin(t, h, framing.Handshake{
		Kind: framing.ChannelNotebookSync, NotebookID: "nb-3", Protocol: framing.ProtocolV2,
	})
	defer finish()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := framing.ReadFrame(client, 0); err != nil {
		t.Fatalf("read capabilities frame: %v", err)
	}

	r, ok := h.Rooms.Get("nb-3")
	if !ok {
		t.Fatalf("expected room nb-3 to exist after join")
	}
	if r.PeerCount() != 1 {
		t.Fatalf("expected 1 active peer, got %d", r.PeerCount())
	}
}
