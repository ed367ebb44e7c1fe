package notebookdoc

import "testing"

func TestAddCellClampsIndex(t *testing.T) {
	doc := New("nb-1")
	doc.AddCell(100, "c1", CellCode)
	cells := doc.GetCells()
	if len(cells) != 1 || cells[0].ID != "c1" {
		t.Fatalf("expected single cell c1 at index 0, got %+v", cells)
	}
}

func TestDeleteMissingCellReturnsFalse(t *testing.T) {
	doc := New("nb-1")
	if doc.DeleteCell("nope") {
		t.Fatalf("expected delete of missing cell to return false")
	}
}

func TestUpdateSourceNoopOnIdenticalText(t *testing.T) {
	doc := New("nb-1")
	doc.AddCell(0, "c1", CellCode)
	if !doc.UpdateSource("c1", "print(1)") {
		t.Fatalf("expected first update to report a change")
	}
	if doc.UpdateSource("c1", "print(1)") {
		t.Fatalf("expected identical update to be a no-op")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	doc := New("nb-1")
	doc.AddCell(0, "c1", CellCode)
	doc.UpdateSource("c1", "print('hi')")
	doc.AppendOutput("c1", "deadbeef")
	doc.SetMetadata("kernel", "python3")

	data := doc.Save()
	loaded, err := Load("nb-1", data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cells := loaded.GetCells()
	if len(cells) != 1 || cells[0].Source != "print('hi')" {
		t.Fatalf("round-trip mismatch: %+v", cells)
	}
	if v, ok := loaded.GetMetadata("kernel"); !ok || v != "python3" {
		t.Fatalf("metadata round-trip mismatch: %q %v", v, ok)
	}
}

func TestUpsertStreamOutputAppendsThenOverwrites(t *testing.T) {
	doc := New("nb-1")
	doc.AddCell(0, "c1", CellCode)
	updated, idx := doc.UpsertStreamOutput("c1", "hash1", -1)
	if updated || idx != 0 {
		t.Fatalf("expected first upsert to append at 0, got updated=%v idx=%d", updated, idx)
	}
	updated, idx = doc.UpsertStreamOutput("c1", "hash2", idx)
	if !updated || idx != 0 {
		t.Fatalf("expected second upsert to overwrite index 0, got updated=%v idx=%d", updated, idx)
	}
	cell, _ := doc.GetCell("c1")
	if len(cell.Outputs) != 1 || cell.Outputs[0] != "hash2" {
		t.Fatalf("expected single overwritten output, got %v", cell.Outputs)
	}
}

func TestSyncConvergesBetweenTwoFreshPeers(t *testing.T) {
	a := New("nb-1")
	a.AddCell(0, "c1", CellCode)
	a.UpdateSource("c1", "1+1")

	b := New("nb-1")

	peerA := a.NewPeerState()
	peerB := b.NewPeerState()

	for i := 0; i < 4; i++ {
		if msg, ok := a.GenerateSyncMessage(peerA); ok {
			b.ReceiveSyncMessage(peerB, msg)
		}
		if msg, ok := b.GenerateSyncMessage(peerB); ok {
			a.ReceiveSyncMessage(peerA, msg)
		}
	}

	aCells, bCells := a.GetCells(), b.GetCells()
	if len(aCells) != len(bCells) {
		t.Fatalf("peer cell counts diverged: %d vs %d", len(aCells), len(bCells))
	}
}
