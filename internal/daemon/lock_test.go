package daemon

import (
	"errors"
	"testing"
)

func TestAcquireSingletonRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireSingleton(dir)
	if err != nil {
		t.Fatalf("AcquireSingleton: %v", err)
	}
	defer first.Release()

	if err := WriteDiscovery(dir, Discovery{SocketPath: dir + "/notebookd.sock", BlobHTTPPort: 4242}); err != nil {
		t.Fatalf("WriteDiscovery: %v", err)
	}

	_, err = AcquireSingleton(dir)
	if err == nil {
		t.Fatal("expected second AcquireSingleton to fail")
	}
	var already *ErrAlreadyRunning
	if !errors.As(err, &already) {
		t.Fatalf("expected *ErrAlreadyRunning, got %T: %v", err, err)
	}
	if already.Other.BlobHTTPPort != 4242 {
		t.Fatalf("expected discovery port 4242, got %d", already.Other.BlobHTTPPort)
	}
}

func TestAcquireSingletonAllowsReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireSingleton(dir)
	if err != nil {
		t.Fatalf("AcquireSingleton: %v", err)
	}
	first.Release()

	second, err := AcquireSingleton(dir)
	if err != nil {
		t.Fatalf("AcquireSingleton after release: %v", err)
	}
	second.Release()
}

func TestWriteDiscoveryRoundTrips(t *testing.T) {
	dir := t.TempDir()
	want := Discovery{SocketPath: dir + "/notebookd.sock", BlobHTTPPort: 9000}
	if err := WriteDiscovery(dir, want); err != nil {
		t.Fatalf("WriteDiscovery: %v", err)
	}
	got, err := readDiscovery(dir + "/daemon.json")
	if err != nil {
		t.Fatalf("readDiscovery: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
