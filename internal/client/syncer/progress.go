package syncer

import (
	"context"
	"sort"
	"time"
)

// Status is the engine state shown to the UI.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSyncing   Status = "syncing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// SyncProgress is a snapshot of the current or last cycle.
type SyncProgress struct {
	// Seq grows by one with every change. Listeners see snapshots in Seq
	// order.
	Seq    uint64
	Status Status

	// TotalItems is the number of outstanding outbox entries when the push
	// phase started. Every one of them ends up in exactly one of the counters
	// below.
	TotalItems   int
	SyncedItems  int
	FailedItems  int
	SkippedItems int
	DeadItems    int

	// PendingChanges counts outbox entries not yet confirmed by the server.
	PendingChanges int

	// LastSync is the end of the last completed cycle; zero if none.
	LastSync  time.Time
	LastError string
}

// AddListener registers fn and immediately calls it with the current
// snapshot. The returned func removes the listener. Deliveries are
// serialized, so fn must not call back into the engine other than through
// Progress.
func (e *Engine) AddListener(fn func(SyncProgress)) (unsubscribe func()) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	snap := e.progress
	e.mu.Unlock()

	e.deliver(fn, snap)

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Progress returns the current snapshot.
func (e *Engine) Progress() SyncProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// update mutates the snapshot under the lock and then notifies listeners
// with the result. Holding notifyMu across both steps keeps deliveries in
// the order the changes were made.
func (e *Engine) update(fn func(p *SyncProgress)) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	fn(&e.progress)
	e.progress.Seq++
	snap := e.progress
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(SyncProgress), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, l := range fns {
		e.deliver(l, snap)
	}
}

func (e *Engine) deliver(fn func(SyncProgress), snap SyncProgress) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(context.Background(), "progress listener panic recovered", "panic", r)
		}
	}()
	fn(snap)
}
