package outputs

import (
	"encoding/json"
	"testing"
)

func TestUpdateByDisplayIDReplacesMatchingOutput(t *testing.T) {
	b := newBuilder(t, 4*1024)

	hash, _, err := b.BuildManifest(RawOutput{
		OutputType: "display_data",
		Data:       map[string]json.RawMessage{"text/plain": json.RawMessage(`"v1"`)},
		Transient:  &Transient{DisplayID: "disp-1"},
	})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	existing := []DocOutputRef{{CellID: "cell-1", Index: 0, Hash: hash}}

	cellID, index, newHash, found, err := b.UpdateByDisplayID("disp-1",
		map[string]json.RawMessage{"text/plain": json.RawMessage(`"v2"`)}, nil, existing)
	if err != nil {
		t.Fatalf("UpdateByDisplayID: %v", err)
	}
	if !found {
		t.Fatal("expected matching output to be found")
	}
	if cellID != "cell-1" || index != 0 {
		t.Fatalf("got cellID=%q index=%d", cellID, index)
	}

	updated, ok, err := b.LoadManifest(newHash)
	if err != nil || !ok {
		t.Fatalf("LoadManifest: ok=%v err=%v", ok, err)
	}
	if updated.Data["text/plain"].Inline == nil || *updated.Data["text/plain"].Inline != `"v2"` {
		t.Fatalf("got %+v", updated.Data["text/plain"])
	}
}

func TestUpdateByDisplayIDNoMatchReturnsFoundFalse(t *testing.T) {
	b := newBuilder(t, 4*1024)
	hash, _, err := b.BuildManifest(RawOutput{
		OutputType: "display_data",
		Data:       map[string]json.RawMessage{"text/plain": json.RawMessage(`"v1"`)},
		Transient:  &Transient{DisplayID: "disp-1"},
	})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	existing := []DocOutputRef{{CellID: "cell-1", Index: 0, Hash: hash}}

	_, _, _, found, err := b.UpdateByDisplayID("disp-does-not-exist", nil, nil, existing)
	if err != nil {
		t.Fatalf("UpdateByDisplayID: %v", err)
	}
	if found {
		t.Fatal("expected no match for unknown display id")
	}
}
