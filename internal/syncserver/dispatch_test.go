package syncserver

import (
	"context"
	"os"
	"testing"

	"github.com/launix-de/notebookd/internal/pool"
	"github.com/launix-de/notebookd/internal/room"
)

type stubBackend struct{ name string }

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) CreateOne(ctx context.Context, cacheDir string) (pool.PooledEnv, error) {
	return pool.PooledEnv{EnvType: b.name, RootPath: "/tmp/" + b.name, InterpreterPath: "/tmp/" + b.name + "/bin/python"}, nil
}

func newTestHub() *Hub {
	uv := pool.New(&stubBackend{name: "uv"}, "/tmp", 1, 0, nil)
	return &Hub{Pools: map[string]*pool.Pool{"uv": uv}}
}

func TestDispatchPoolPing(t *testing.T) {
	h := newTestHub()
	resp := h.DispatchPool(context.Background(), Request{Verb: "Ping"})
	if resp.Verb != "Pong" {
		t.Fatalf("expected Pong, got %+v", resp)
	}
}

func TestDispatchPoolTakeOnDemand(t *testing.T) {
	h := newTestHub()
	resp := h.DispatchPool(context.Background(), Request{Verb: "Take", EnvType: "uv"})
	if resp.Verb != "Env" || resp.Env == nil {
		t.Fatalf("expected Env response, got %+v", resp)
	}
	if resp.Env.InterpreterPath != "/tmp/uv/bin/python" {
		t.Fatalf("unexpected interpreter path: %+v", resp.Env)
	}
}

func TestDispatchPoolTakeUnknownEnvType(t *testing.T) {
	h := newTestHub()
	resp := h.DispatchPool(context.Background(), Request{Verb: "Take", EnvType: "bogus"})
	if resp.Error == "" {
		t.Fatalf("expected error for unknown env_type, got %+v", resp)
	}
}

func TestDispatchPoolReturnThenTakeIsWarm(t *testing.T) {
	h := newTestHub()
	dir := t.TempDir()
	interpreter := dir + "/python"
	if f, err := os.Create(interpreter); err != nil {
		t.Fatalf("create fake interpreter: %v", err)
	} else {
		f.Close()
	}
	env := &PooledEnvJSON{EnvType: "uv", RootPath: dir, InterpreterPath: interpreter}
	ret := h.DispatchPool(context.Background(), Request{Verb: "Return", Env: env})
	if ret.Verb != "Returned" {
		t.Fatalf("expected Returned, got %+v", ret)
	}
	take := h.DispatchPool(context.Background(), Request{Verb: "Take", EnvType: "uv"})
	if take.Verb != "Env" || take.Env.RootPath != dir {
		t.Fatalf("expected to take back the returned env, got %+v", take)
	}
}

func TestDispatchPoolStatus(t *testing.T) {
	h := newTestHub()
	resp := h.DispatchPool(context.Background(), Request{Verb: "Status"})
	if resp.Verb != "Stats" {
		t.Fatalf("expected Stats, got %+v", resp)
	}
}

func TestDispatchPoolUnknownVerb(t *testing.T) {
	h := newTestHub()
	resp := h.DispatchPool(context.Background(), Request{Verb: "DoesNotExist"})
	if resp.Error == "" {
		t.Fatalf("expected error for unknown verb, got %+v", resp)
	}
}

func TestDispatchPoolListRooms(t *testing.T) {
	h := newTestHub()
	h.Rooms = room.NewRegistry()
	resp := h.DispatchPool(context.Background(), Request{Verb: "ListRooms"})
	if resp.Verb != "RoomsList" {
		t.Fatalf("expected RoomsList, got %+v", resp)
	}
	if len(resp.Rooms) != 0 {
		t.Fatalf("expected no rooms, got %+v", resp.Rooms)
	}
}
