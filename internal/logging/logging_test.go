package logging

import (
	"sync"
	"testing"
)

func TestWithTracePropagatesIntoGoSpawn(t *testing.T) {
	var got string
	var wg sync.WaitGroup
	wg.Add(1)
	WithTrace("abc123", func() {
		Go(func() {
			defer wg.Done()
			got = currentTrace()
		})
	})
	wg.Wait()
	if got != "abc123" {
		t.Fatalf("expected trace id to propagate into spawned goroutine, got %q", got)
	}
}

func TestCurrentTraceOutsideWithTraceIsPlaceholder(t *testing.T) {
	if got := currentTrace(); got != "-" {
		t.Fatalf("expected placeholder trace id outside WithTrace, got %q", got)
	}
}

func TestSetLevelGatesLogLines(t *testing.T) {
	SetLevel(LevelError)
	defer SetLevel(LevelInfo)
	if enabled(LevelDebug) {
		t.Fatal("expected debug to be disabled at error level")
	}
	if !enabled(LevelError) {
		t.Fatal("expected error to be enabled at error level")
	}
}

func TestNewTraceIDIsNonEmpty(t *testing.T) {
	if len(NewTraceID()) != 8 {
		t.Fatalf("expected an 8-character trace id, got %q", NewTraceID())
	}
}
