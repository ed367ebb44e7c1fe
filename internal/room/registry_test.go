package room

import "testing"

func TestGetOrCreateReturnsSameRoomOnSecondCall(t *testing.T) {
	reg := NewRegistry()
	dir := t.TempDir()

	r1, err := reg.GetOrCreate("nb-1", dir)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	r2, err := reg.GetOrCreate("nb-1", dir)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if r1 != r2 {
		t.Fatal("expected the same *Room on repeated GetOrCreate")
	}
}

func TestGetReportsAbsence(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Get("does-not-exist"); ok {
		t.Fatal("expected ok=false for a room that was never created")
	}
}

func TestListReturnsAllCreatedRooms(t *testing.T) {
	reg := NewRegistry()
	dir := t.TempDir()
	if _, err := reg.GetOrCreate("nb-a", dir); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := reg.GetOrCreate("nb-b", dir); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got := len(reg.List()); got != 2 {
		t.Fatalf("expected 2 rooms, got %d", got)
	}
}

func TestEvictRemovesRoom(t *testing.T) {
	reg := NewRegistry()
	dir := t.TempDir()
	if _, err := reg.GetOrCreate("nb-1", dir); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	reg.Evict("nb-1")
	if _, ok := reg.Get("nb-1"); ok {
		t.Fatal("expected room to be gone after Evict")
	}
}

func TestEvictOnUnknownIDIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Evict("does-not-exist") // must not panic
}
