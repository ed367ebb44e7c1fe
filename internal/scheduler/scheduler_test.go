package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleAfterRuns(t *testing.T) {
	s := New()
	defer s.Stop()
	var ran int32
	done := make(chan struct{})
	s.ScheduleAfter(10*time.Millisecond, func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("task did not set ran flag")
	}
}

func TestClearPreventsExecution(t *testing.T) {
	s := New()
	defer s.Stop()
	var ran int32
	id, _ := s.ScheduleAfter(20*time.Millisecond, func() {
		atomic.StoreInt32(&ran, 1)
	})
	if !s.Clear(id) {
		t.Fatal("expected Clear to succeed before the task ran")
	}
	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("cleared task ran anyway")
	}
}
