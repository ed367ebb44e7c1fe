/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package pool

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/btree"
	"golang.org/x/sync/singleflight"
)

// backoffSchedule is the exact retry-delay table named in SPEC_FULL.md
// §4.F's Open Question decision: 30s, 60s, 120s, 240s, then capped at
// 300s for every failure beyond the fourth. Kept as a literal table,
// not a formula, so the schedule can't silently drift under rounding.
var backoffSchedule = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	300 * time.Second,
}

func backoffDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	idx := consecutiveFailures - 1
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}

// FailureState tracks the pool's creation-failure history, surfaced
// verbatim to the Status RPC (spec.md §4.F).
type FailureState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	FailedPackage       string    `json:"failed_package,omitempty"`
}

// State is the point-in-time snapshot broadcast to pool_state_subscribe
// peers and returned from Status (spec.md §4.F, §6).
type State struct {
	EnvType   string        `json:"env_type"`
	Available int           `json:"available"`
	Warming   int           `json:"warming"`
	Target    int           `json:"target"`
	Failure   FailureState  `json:"failure_state"`
}

// entry is the btree.Item wrapping a pooled environment, ordered by
// creation time (oldest first) so Take always hands out the
// longest-idle environment and the maintenance loop prunes the
// stalest ones first.
type entry struct {
	createdAt time.Time
	seq       uint64 // tiebreaker for equal timestamps
	env       PooledEnv
}

func (e *entry) Less(than btree.Item) bool {
	o := than.(*entry)
	if e.createdAt.Equal(o.createdAt) {
		return e.seq < o.seq
	}
	return e.createdAt.Before(o.createdAt)
}

// Pool maintains a warm set of PooledEnv against a target size,
// exactly mirroring the lifecycle the teacher's storage.SharedResource
// cache applies to cold/shared/write-locked resources, generalized
// here to "idle env in the tree" vs. "checked out by a kernel"
// (storage/shared_resource.go).
type Pool struct {
	mu        sync.Mutex
	available *btree.BTree
	seq       uint64
	warming   int
	target    int
	maxAge    time.Duration
	failure   FailureState
	backend   Backend
	cacheDir  string
	sf        singleflight.Group

	subsMu sync.Mutex
	subs   map[int]func(State)
	nextID int
}

const btreeDegree = 32

// New constructs a Pool for the given backend with the target size
// and max-age named in SPEC_FULL.md's Open Question decision (48h).
// onStateChange, if non-nil, is registered as the pool's first
// subscriber (e.g. internal/daemon's own warm-state log line); more
// can be added later via Subscribe, one per pool_state_subscribe
// connection (spec.md §6).
func New(backend Backend, cacheDir string, target int, maxAge time.Duration, onStateChange func(State)) *Pool {
	p := &Pool{
		available: btree.New(btreeDegree),
		target:    target,
		maxAge:    maxAge,
		backend:   backend,
		cacheDir:  cacheDir,
		subs:      make(map[int]func(State)),
	}
	if onStateChange != nil {
		p.Subscribe(onStateChange)
	}
	return p
}

// Subscribe registers fn to receive every subsequent state snapshot.
// The returned function removes the subscription.
func (p *Pool) Subscribe(fn func(State)) (unsubscribe func()) {
	p.subsMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.subsMu.Unlock()
	return func() {
		p.subsMu.Lock()
		delete(p.subs, id)
		p.subsMu.Unlock()
	}
}

func (p *Pool) broadcastLocked() {
	state := State{
		EnvType:   p.backend.Name(),
		Available: p.available.Len(),
		Warming:   p.warming,
		Target:    p.target,
		Failure:   p.failure,
	}
	p.subsMu.Lock()
	fns := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subsMu.Unlock()
	for _, fn := range fns {
		go fn(state)
	}
}

// Status returns a point-in-time snapshot.
func (p *Pool) Status() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		EnvType:   p.backend.Name(),
		Available: p.available.Len(),
		Warming:   p.warming,
		Target:    p.target,
		Failure:   p.failure,
	}
}

// Take removes and returns the oldest available environment whose
// on-disk interpreter still exists, skipping (and discarding) any
// stale entries it finds along the way. The second return is false if
// no valid environment remains; callers fall back to CreateOnDemand
// in that case (spec.md §3 EnvPool invariant, §4.F).
func (p *Pool) Take() (PooledEnv, bool) {
	var vanished []PooledEnv
	var found PooledEnv
	ok := false

	p.mu.Lock()
	for {
		min := p.available.Min()
		if min == nil {
			break
		}
		p.available.Delete(min)
		env := min.(*entry).env
		if _, err := os.Stat(env.InterpreterPath); err != nil {
			vanished = append(vanished, env)
			continue
		}
		found, ok = env, true
		break
	}
	p.mu.Unlock()

	for _, env := range vanished {
		log.Printf("pool[%s]: take: discarding env with vanished interpreter %s", p.backend.Name(), env.InterpreterPath)
		if err := os.RemoveAll(env.RootPath); err != nil {
			log.Printf("pool[%s]: remove vanished env %s: %v", p.backend.Name(), env.RootPath, err)
		}
	}

	if !ok {
		return PooledEnv{}, false
	}

	// Trigger a non-blocking one-slot replenish (spec.md §4.F: "Trigger
	// a non-blocking replenish (one slot)").
	p.mu.Lock()
	replenish := p.target-p.available.Len()-p.warming > 0 && p.shouldRetryLocked()
	if replenish {
		p.warming++
		p.broadcastLocked()
	}
	p.mu.Unlock()
	if replenish {
		go p.createOneWarming(context.Background())
	}

	return found, true
}

// Return puts env back into the pool if under target, otherwise
// deletes its on-disk root so the pool never grows past its intended
// size from returns alone.
func (p *Pool) Return(env PooledEnv) {
	p.mu.Lock()
	if p.available.Len() >= p.target {
		p.mu.Unlock()
		if err := os.RemoveAll(env.RootPath); err != nil {
			log.Printf("pool[%s]: remove excess env %s: %v", p.backend.Name(), env.RootPath, err)
		}
		return
	}
	p.seq++
	p.available.ReplaceOrInsert(&entry{createdAt: time.Now(), seq: p.seq, env: env})
	p.broadcastLocked()
	p.mu.Unlock()
}

// ResetFailure clears the pool's backoff/failure state without
// touching available or warming, unlike Flush. Used when an external
// event may have fixed the underlying cause of failures — a settings
// change in particular, per spec.md §4.E's "reset any per-pool
// backoff state (user may have fixed a typo)" — so the next
// MaintenanceTick retries immediately instead of waiting out a stale
// backoff window.
func (p *Pool) ResetFailure() {
	p.mu.Lock()
	if p.failure.ConsecutiveFailures == 0 {
		p.mu.Unlock()
		return
	}
	p.failure = FailureState{}
	p.broadcastLocked()
	p.mu.Unlock()
}

// Flush drains and deletes every available environment and resets
// failure state, used by the FlushPool RPC (spec.md §6).
func (p *Pool) Flush() {
	p.mu.Lock()
	var doomed []PooledEnv
	p.available.Ascend(func(i btree.Item) bool {
		doomed = append(doomed, i.(*entry).env)
		return true
	})
	p.available = btree.New(btreeDegree)
	p.failure = FailureState{}
	p.broadcastLocked()
	p.mu.Unlock()

	for _, env := range doomed {
		if err := os.RemoveAll(env.RootPath); err != nil {
			log.Printf("pool[%s]: flush remove %s: %v", p.backend.Name(), env.RootPath, err)
		}
	}
}

// pruneStaleLocked evicts environments older than maxAge. Must hold p.mu.
func (p *Pool) pruneStaleLocked() []PooledEnv {
	if p.maxAge <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-p.maxAge)
	var stale []*entry
	p.available.Ascend(func(i btree.Item) bool {
		e := i.(*entry)
		if e.createdAt.Before(cutoff) {
			stale = append(stale, e)
			return true
		}
		return false // btree ascends in order, so once one is fresh the rest are too
	})
	var envs []PooledEnv
	for _, e := range stale {
		p.available.Delete(e)
		envs = append(envs, e.env)
	}
	return envs
}

// shouldRetryLocked reports whether enough time has passed since the
// last failure to attempt another creation. Must hold p.mu.
func (p *Pool) shouldRetryLocked() bool {
	if p.failure.ConsecutiveFailures == 0 {
		return true
	}
	return time.Since(p.failure.LastFailure) >= backoffDelay(p.failure.ConsecutiveFailures)
}

// MaintenanceTick prunes stale environments, computes the deficit
// against target, and — if the backoff window allows — launches
// creation goroutines to fill it. Intended to be called periodically
// by a scheduler.Scheduler.ScheduleEvery (spec.md §4.F).
func (p *Pool) MaintenanceTick(ctx context.Context) {
	p.mu.Lock()
	stale := p.pruneStaleLocked()
	deficit := p.target - p.available.Len() - p.warming
	retry := p.shouldRetryLocked()
	if deficit > 0 && retry {
		p.warming += deficit
	}
	p.broadcastLocked()
	p.mu.Unlock()

	for _, env := range stale {
		if err := os.RemoveAll(env.RootPath); err != nil {
			log.Printf("pool[%s]: prune stale env %s: %v", p.backend.Name(), env.RootPath, err)
		}
	}

	if deficit <= 0 || !retry {
		return
	}
	for i := 0; i < deficit; i++ {
		go p.createOneWarming(ctx)
	}
}

// createOneWarming runs the backend's creation pipeline for a single
// warming slot and folds the result back into the pool.
func (p *Pool) createOneWarming(ctx context.Context) {
	env, err := p.backend.CreateOne(ctx, p.cacheDir)

	p.mu.Lock()
	p.warming--
	if err != nil {
		p.failure.ConsecutiveFailures++
		p.failure.LastFailure = time.Now()
		p.failure.LastError = err.Error()
		p.failure.FailedPackage = ParseFailedPackage(err.Error())
		log.Printf("pool[%s]: creation failed (consecutive=%d): %v", p.backend.Name(), p.failure.ConsecutiveFailures, err)
		p.broadcastLocked()
		p.mu.Unlock()
		return
	}
	p.failure = FailureState{}
	p.seq++
	p.available.ReplaceOrInsert(&entry{createdAt: time.Now(), seq: p.seq, env: env})
	p.broadcastLocked()
	p.mu.Unlock()
}

// CreateOnDemand runs the backend's creation pipeline outside the
// pool's target bookkeeping, deduplicating concurrent callers so a
// burst of simultaneous LaunchKernel calls against an empty pool
// triggers exactly one creation per backend (spec.md §4.F:
// "on-demand creation is singleflight-deduped per backend").
func (p *Pool) CreateOnDemand(ctx context.Context) (PooledEnv, error) {
	v, err, _ := p.sf.Do(p.backend.Name(), func() (interface{}, error) {
		return p.backend.CreateOne(ctx, p.cacheDir)
	})
	if err != nil {
		return PooledEnv{}, err
	}
	return v.(PooledEnv), nil
}
