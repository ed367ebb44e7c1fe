package debugconsole

import (
	"context"
	"testing"

	"github.com/launix-de/notebookd/internal/pool"
	"github.com/launix-de/notebookd/internal/room"
	"github.com/launix-de/notebookd/internal/syncserver"
)

type stubBackend struct{ name string }

func (b *stubBackend) Name() string { return b.name }
func (b *stubBackend) CreateOne(ctx context.Context, cacheDir string) (pool.PooledEnv, error) {
	return pool.PooledEnv{EnvType: b.name}, nil
}

func TestKnownCommandsDispatchToHub(t *testing.T) {
	hub := syncserver.NewHub(room.NewRegistry(), map[string]*pool.Pool{
		"uv": pool.New(&stubBackend{name: "uv"}, t.TempDir(), 1, 0, nil),
	}, nil, nil, t.TempDir(), t.TempDir(), nil)

	for name, req := range commands {
		resp := hub.DispatchPool(context.Background(), req)
		if resp.Verb == "" {
			t.Fatalf("command %q produced an empty response verb", name)
		}
	}
}
