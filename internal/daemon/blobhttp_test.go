package daemon

import (
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/launix-de/notebookd/internal/blobstore"
)

func TestBlobHTTPServerServesStoredBlob(t *testing.T) {
	store := blobstore.NewStore(blobstore.NewFileBackend(t.TempDir()))
	hash, err := store.Put([]byte("hello notebookd"), "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	srv, err := startBlobHTTPServer(store)
	if err != nil {
		t.Fatalf("startBlobHTTPServer: %v", err)
	}
	defer srv.Close()

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(srv.Port()) + "/blobs/" + hash)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello notebookd" {
		t.Fatalf("got body %q", body)
	}
}

func TestBlobHTTPServerMissingHashIs404(t *testing.T) {
	store := blobstore.NewStore(blobstore.NewFileBackend(t.TempDir()))
	srv, err := startBlobHTTPServer(store)
	if err != nil {
		t.Fatalf("startBlobHTTPServer: %v", err)
	}
	defer srv.Close()

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(srv.Port()) + "/blobs/doesnotexist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

