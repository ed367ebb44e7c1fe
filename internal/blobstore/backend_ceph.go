//go:build ceph

package blobstore

import (
	"fmt"

	"github.com/ceph/go-ceph/rados"
)

func init() {
	BackendRegistry["ceph"] = func(_ string, cfg map[string]string) (Backend, error) {
		return NewCephBackend(CephConfig{
			UserName:    cfg["username"],
			ClusterName: cfg["cluster"],
			ConfFile:    cfg["conf_file"],
			Pool:        cfg["pool"],
			Prefix:      cfg["prefix"],
		})
	}
}

// CephConfig mirrors the teacher's CephFactory fields
// (storage/persistence-ceph.go), trimmed to what a RADOS object
// store needs — a blob has no shard/column structure to express.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// CephBackend mirrors blob writes into a RADOS pool. Built only with
// -tags=ceph, same as the teacher's Ceph persistence engine, because
// go-ceph binds librados via cgo.
type CephBackend struct {
	cfg  CephConfig
	conn *rados.Conn
	ioctx *rados.IOContext
}

func NewCephBackend(cfg CephConfig) (*CephBackend, error) {
	conn, err := rados.NewConnWithClusterAndUser(cfg.ClusterName, cfg.UserName)
	if err != nil {
		return nil, fmt.Errorf("blobstore: rados conn: %w", err)
	}
	if cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(cfg.ConfFile); err != nil {
			return nil, fmt.Errorf("blobstore: rados read config: %w", err)
		}
	} else if err := conn.ReadDefaultConfigFile(); err != nil {
		return nil, fmt.Errorf("blobstore: rados read default config: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("blobstore: rados connect: %w", err)
	}
	ioctx, err := conn.OpenIOContext(cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return nil, fmt.Errorf("blobstore: rados open pool %s: %w", cfg.Pool, err)
	}
	return &CephBackend{cfg: cfg, conn: conn, ioctx: ioctx}, nil
}

func (b *CephBackend) objectName(hash string) string {
	if b.cfg.Prefix == "" {
		return hash
	}
	return b.cfg.Prefix + "/" + hash
}

func (b *CephBackend) Put(hash string, _ string, data []byte) error {
	if err := b.ioctx.WriteFull(b.objectName(hash), data); err != nil {
		return fmt.Errorf("blobstore: rados write %s: %w", hash, err)
	}
	return nil
}

func (b *CephBackend) Get(hash string) ([]byte, error) {
	stat, err := b.ioctx.Stat(b.objectName(hash))
	if err != nil {
		return nil, ErrNotFound
	}
	buf := make([]byte, stat.Size)
	n, err := b.ioctx.Read(b.objectName(hash), buf, 0)
	if err != nil {
		return nil, fmt.Errorf("blobstore: rados read %s: %w", hash, err)
	}
	return buf[:n], nil
}

func (b *CephBackend) Delete(hash string) error {
	if err := b.ioctx.Delete(b.objectName(hash)); err != nil {
		return fmt.Errorf("blobstore: rados delete %s: %w", hash, err)
	}
	return nil
}
