package outputs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/launix-de/notebookd/internal/blobstore"
)

func newBuilder(t *testing.T, threshold int) *Builder {
	t.Helper()
	store := blobstore.NewStore(blobstore.NewFileBackend(t.TempDir()))
	return NewBuilder(store, threshold)
}

func TestBuildManifestInlinesShortStream(t *testing.T) {
	b := newBuilder(t, 4*1024)
	hash, manifest, err := b.BuildManifest(RawOutput{OutputType: "stream", Name: "stdout", Text: "hi there"})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty manifest hash")
	}
	if manifest.Text == nil || manifest.Text.Inline == nil || *manifest.Text.Inline != "hi there" {
		t.Fatalf("expected inline text, got %+v", manifest.Text)
	}
}

func TestBuildManifestBlobsOversizedStream(t *testing.T) {
	b := newBuilder(t, 8)
	big := strings.Repeat("x", 100)
	_, manifest, err := b.BuildManifest(RawOutput{OutputType: "stream", Name: "stdout", Text: big})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	if manifest.Text == nil || manifest.Text.Blob == nil {
		t.Fatalf("expected blob ref for oversized text, got %+v", manifest.Text)
	}

	loaded, ok, err := b.store.Get(*manifest.Text.Blob)
	if err != nil || !ok {
		t.Fatalf("expected stored blob to be retrievable: ok=%v err=%v", ok, err)
	}
	if string(loaded) != big {
		t.Fatalf("stored blob mismatch")
	}
}

func TestBuildManifestScoresTracebackAsWhole(t *testing.T) {
	b := newBuilder(t, 20)
	lines := []string{"short line one", "short line two"}
	_, manifest, err := b.BuildManifest(RawOutput{OutputType: "error", Ename: "E", Evalue: "v", Traceback: lines})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	// joined traceback exceeds the 20-byte threshold even though each
	// line individually would fit, so it must be a single blob ref.
	if len(manifest.Traceback) != 1 || manifest.Traceback[0].Blob == nil {
		t.Fatalf("expected single blob traceback ref, got %+v", manifest.Traceback)
	}
}

func TestBuildManifestInlinesShortTraceback(t *testing.T) {
	b := newBuilder(t, 4*1024)
	lines := []string{"line1", "line2"}
	_, manifest, err := b.BuildManifest(RawOutput{OutputType: "error", Traceback: lines})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	if len(manifest.Traceback) != 2 {
		t.Fatalf("expected one ref per line, got %d", len(manifest.Traceback))
	}
	for _, ref := range manifest.Traceback {
		if ref.Inline == nil {
			t.Fatalf("expected inline ref, got %+v", ref)
		}
	}
}

func TestLoadManifestRoundTrips(t *testing.T) {
	b := newBuilder(t, 4*1024)
	hash, _, err := b.BuildManifest(RawOutput{OutputType: "stream", Name: "stdout", Text: "round trip"})
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	loaded, ok, err := b.LoadManifest(hash)
	if err != nil || !ok {
		t.Fatalf("LoadManifest: ok=%v err=%v", ok, err)
	}
	if loaded.Text == nil || *loaded.Text.Inline != "round trip" {
		t.Fatalf("got %+v", loaded.Text)
	}
}

func TestLoadManifestMissingHashReturnsNotFound(t *testing.T) {
	b := newBuilder(t, 4*1024)
	_, ok, err := b.LoadManifest("deadbeef")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing hash")
	}
}

func TestContentRefMarshalsInlineOrBlobExclusively(t *testing.T) {
	s := "inline value"
	out, err := json.Marshal(ContentRef{Inline: &s})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"inline"`) || strings.Contains(string(out), `"blob"`) {
		t.Fatalf("got %s", out)
	}

	h := "abc123"
	out, err = json.Marshal(ContentRef{Blob: &h})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"blob"`) || strings.Contains(string(out), `"inline"`) {
		t.Fatalf("got %s", out)
	}
}
