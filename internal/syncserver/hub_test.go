package syncserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/launix-de/notebookd/internal/pool"
)

func TestNotifySettingsChangedResetsPoolBackoff(t *testing.T) {
	backend := &stubBackend{name: "uv"}
	failing := &failingOnceBackend{stubBackend: backend}
	p := pool.New(failing, "/tmp", 1, 0, nil)

	p.MaintenanceTick(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for p.Status().Failure.ConsecutiveFailures == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Status().Failure.ConsecutiveFailures == 0 {
		t.Fatal("expected a recorded failure before settings change")
	}

	h := &Hub{Pools: map[string]*pool.Pool{"uv": p}}
	h.NotifySettingsChanged()

	if got := p.Status().Failure.ConsecutiveFailures; got != 0 {
		t.Fatalf("expected settings change to reset backoff, got %d consecutive failures", got)
	}
}

// failingOnceBackend fails its first CreateOne call then succeeds,
// so a test can observe a recorded failure without racing a
// concurrent retry.
type failingOnceBackend struct {
	*stubBackend
	failed bool
}

func (b *failingOnceBackend) CreateOne(ctx context.Context, cacheDir string) (pool.PooledEnv, error) {
	if !b.failed {
		b.failed = true
		return pool.PooledEnv{}, errors.New("mock create failure")
	}
	return b.stubBackend.CreateOne(ctx, cacheDir)
}
