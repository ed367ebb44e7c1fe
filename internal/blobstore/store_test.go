package blobstore

import (
	"bytes"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(NewFileBackend(dir))

	data := []byte("print('x')\n")
	hash, err := store.Put(data, "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(hash) != 64 {
		t.Fatalf("expected 64-char hex hash, got %q", hash)
	}

	got, ok, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected hash to be found")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, data)
	}
}

func TestGetMissingIsNotError(t *testing.T) {
	store := NewStore(NewFileBackend(t.TempDir()))
	_, ok, err := store.Get("0000000000000000000000000000000000000000000000000000000000000000"[:64])
	if err != nil {
		t.Fatalf("expected no error for missing hash, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing hash")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store := NewStore(NewFileBackend(t.TempDir()))
	data := []byte("same content")
	h1, err := store.Put(data, "")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := store.Put(data, "")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hash on repeat Put, got %s vs %s", h1, h2)
	}
}

func TestLargeBlobCompressedRoundTrip(t *testing.T) {
	store := NewStore(NewFileBackend(t.TempDir()))
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 1000)
	hash, err := store.Put(data, "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Get(hash)
	if err != nil || !ok {
		t.Fatalf("Get after large Put: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("large blob round-trip mismatch")
	}
}
