package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend is the local, mandatory backend: blobs live at
// {root}/{hash[0:2]}/{hash[2:]}. Grounded on the teacher's
// storage.FileStorage (storage/persistence-files.go) — directory
// creation, temp-file-then-rename for atomicity, and treating
// "already there" as success rather than an error.
type FileBackend struct {
	root string
}

func NewFileBackend(root string) *FileBackend {
	return &FileBackend{root: root}
}

func (b *FileBackend) shardPath(hash string) (dir, full string) {
	dir = filepath.Join(b.root, hash[:2])
	full = filepath.Join(dir, hash[2:])
	return
}

func (b *FileBackend) Put(hash string, _ string, data []byte) error {
	dir, full := b.shardPath(hash)
	if _, err := os.Stat(full); err == nil {
		return nil // write-once: already present
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("blobstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		// a concurrent writer may have already renamed an identical
		// temp file into place; treat that as success.
		if _, statErr := os.Stat(full); statErr == nil {
			return nil
		}
		return fmt.Errorf("blobstore: rename into place: %w", err)
	}
	return nil
}

func (b *FileBackend) Get(hash string) ([]byte, error) {
	_, full := b.shardPath(hash)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: read %s: %w", hash, err)
	}
	return data, nil
}

func (b *FileBackend) Delete(hash string) error {
	_, full := b.shardPath(hash)
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s: %w", hash, err)
	}
	return nil
}
