// Package syncer reconciles the local store with the server.
//
// A cycle has two phases and push always runs first: outstanding outbox
// entries are sent to the server in FIFO order, then every entity collection
// is pulled and applied through a Resolver. Only one cycle runs at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/client/client"
	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ledgersync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/ledgersync/internal/client/store"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/logging"
)

var (
	// ErrOffline is returned by Sync when the monitor reports no connectivity.
	ErrOffline = errors.New("offline")
	// ErrSuperseded ends a cycle cancelled by a forced restart.
	ErrSuperseded = errors.New("sync superseded by forced restart")
	ErrClosed     = errors.New("sync engine closed")
	// ErrStopped is returned by Sync between Stop and its resume.
	ErrStopped = errors.New("sync engine stopped")
)

// offlineMessage is what the UI sees in LastError while offline.
const offlineMessage = "Offline"

const interruptedReason = "interrupted"

// LocalStore is the part of store.Store the engine uses.
type LocalStore interface {
	Outbox() outbox.Repository
	Metadata() metadata.Repository
	AcknowledgePush(ctx context.Context, e *models.OutboxEntry, serverVersion int64) error
	Reconcile(ctx context.Context, t models.EntityType, remote *models.RemoteRow, accept store.Decision) (bool, error)
	PendingChanges(ctx context.Context) (int, error)
}

// Connectivity reports reachability. netmon.Monitor satisfies it.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type Options struct {
	Resolver Resolver
	Backoff  Backoff
	// RemoteCallTimeout bounds every single remote call. Zero means no limit.
	RemoteCallTimeout time.Duration
	Logger            logging.Logger
	Now               func() time.Time
}

type cycle struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

type Engine struct {
	store   LocalStore
	remote  client.Remote
	monitor Connectivity
	backoff Backoff
	timeout time.Duration
	log     logging.Logger
	now     func() time.Time

	// notifyMu orders listener deliveries; it is taken before mu.
	notifyMu sync.Mutex

	mu           sync.Mutex
	resolver     Resolver
	running      *cycle
	progress     SyncProgress
	listeners    map[int]func(SyncProgress)
	nextListener int
	closed       bool
	stopped      int
	autoStop     context.CancelFunc
	autoDone     chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
	bg         sync.WaitGroup
	unsub      func()
}

// NewEngine wires the engine to its collaborators and subscribes to the
// monitor: every transition into online triggers a non-forced Sync.
func NewEngine(st LocalStore, remote client.Remote, monitor Connectivity, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Resolver == nil {
		opts.Resolver, _ = NewResolver(PolicyServerWins, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:      st,
		remote:     remote,
		monitor:    monitor,
		backoff:    opts.Backoff,
		timeout:    opts.RemoteCallTimeout,
		log:        opts.Logger.With("module", "syncer"),
		now:        opts.Now,
		resolver:   opts.Resolver,
		progress:   SyncProgress{Status: StatusIdle},
		listeners:  make(map[int]func(SyncProgress)),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	e.unsub = monitor.Subscribe(e.onConnectivity)
	return e
}

func (e *Engine) onConnectivity(online bool) {
	if !online {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.bg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bg.Done()
		err := e.Sync(e.baseCtx, false)
		if err != nil && !errors.Is(err, ErrOffline) && !errors.Is(err, ErrStopped) {
			e.log.Warn(e.baseCtx, "sync after reconnect failed", "error", err)
		}
	}()
}

// SetResolver replaces the conflict policy. A running cycle keeps the
// resolver it started with.
func (e *Engine) SetResolver(r Resolver) {
	e.mu.Lock()
	e.resolver = r
	e.mu.Unlock()
}

// Sync runs one cycle. While a cycle is running a non-forced call returns
// nil at once; a forced call cancels the running cycle, waits for it to
// wind down and then starts a new one. Offline always fails with ErrOffline.
func (e *Engine) Sync(ctx context.Context, force bool) error {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		if e.stopped > 0 {
			e.mu.Unlock()
			return ErrStopped
		}
		run := e.running
		if run == nil {
			break
		}
		e.mu.Unlock()

		if !force {
			return nil
		}
		run.cancel(ErrSuperseded)
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// e.mu is held here and no cycle is running.

	if !e.monitor.IsOnline() {
		e.mu.Unlock()
		e.update(func(p *SyncProgress) {
			p.Status = StatusError
			p.LastError = offlineMessage
		})
		return ErrOffline
	}

	cctx, cancel := context.WithCancelCause(ctx)
	run := &cycle{cancel: cancel, done: make(chan struct{})}
	e.running = run
	resolver := e.resolver
	e.mu.Unlock()

	e.update(func(p *SyncProgress) {
		p.Status = StatusSyncing
		p.TotalItems, p.SyncedItems, p.FailedItems, p.SkippedItems, p.DeadItems = 0, 0, 0, 0, 0
	})

	err := e.runCycle(cctx, resolver)
	pending, perr := e.store.PendingChanges(context.WithoutCancel(ctx))

	e.update(func(p *SyncProgress) {
		if perr == nil {
			p.PendingChanges = pending
		}
		if err != nil {
			p.Status = StatusError
			p.LastError = err.Error()
			return
		}
		p.Status = StatusCompleted
		p.LastSync = e.now()
		p.LastError = ""
	})

	e.mu.Lock()
	e.running = nil
	e.mu.Unlock()
	cancel(nil)
	close(run.done)
	return err
}

func (e *Engine) runCycle(ctx context.Context, resolver Resolver) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panic: %v", r)
			e.log.Error(ctx, "sync cycle panicked", "panic", r)
		}
	}()

	start := e.now()
	e.log.Info(ctx, "sync started")
	if err := e.push(ctx); err != nil {
		e.log.Error(ctx, "push phase aborted", "error", err)
		return err
	}
	if err := e.pull(ctx, resolver); err != nil {
		e.log.Error(ctx, "pull phase aborted", "error", err)
		return err
	}
	p := e.Progress()
	e.log.Info(ctx, "sync finished",
		"synced", p.SyncedItems, "failed", p.FailedItems, "skipped", p.SkippedItems,
		"dead", p.DeadItems, "took", e.now().Sub(start))
	return nil
}

// cause turns a cancelled context into the reason it was cancelled for.
func cause(ctx context.Context) error {
	if c := context.Cause(ctx); c != nil {
		return c
	}
	return ctx.Err()
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) push(ctx context.Context) error {
	ob := e.store.Outbox()

	n, err := ob.RecoverProcessing(ctx, interruptedReason)
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.Warn(ctx, "recovered interrupted outbox entries", "count", n)
	}

	entries, err := ob.Outstanding(ctx)
	if err != nil {
		return err
	}
	e.update(func(p *SyncProgress) { p.TotalItems = len(entries) })

	now := e.now().Unix()
	blocked := make(map[models.EntityKey]bool)

	for i := range entries {
		entry := &entries[i]
		if ctx.Err() != nil {
			return cause(ctx)
		}
		key := entry.Key()

		switch {
		case entry.Status == models.StatusDead:
			blocked[key] = true
			e.update(func(p *SyncProgress) { p.DeadItems++ })
			continue
		case blocked[key]:
			e.update(func(p *SyncProgress) { p.SkippedItems++ })
			continue
		case entry.Status == models.StatusFailed && entry.NextAttemptAt > now:
			blocked[key] = true
			e.update(func(p *SyncProgress) { p.SkippedItems++ })
			continue
		}

		ok, err := e.pushEntry(ctx, ob, entry)
		if err != nil {
			return err
		}
		if !ok {
			blocked[key] = true
		}
	}

	purged, err := ob.PurgeCompleted(ctx)
	if err != nil {
		return err
	}
	e.log.Debug(ctx, "purged completed outbox entries", "count", purged)
	return nil
}

// pushEntry sends one entry. ok is false when the push failed; err is set
// only for failures that must abort the cycle.
func (e *Engine) pushEntry(ctx context.Context, ob outbox.Repository, entry *models.OutboxEntry) (ok bool, err error) {
	if err := ob.MarkStatus(ctx, entry.ID, models.StatusProcessing, ""); err != nil {
		return false, err
	}
	entry.Attempts++

	serverVersion, rerr := e.dispatch(ctx, entry)

	// the outcome is recorded even when the cycle is being cancelled
	wctx := context.WithoutCancel(ctx)

	if rerr == nil {
		if err := e.store.AcknowledgePush(wctx, entry, serverVersion); err != nil {
			return false, err
		}
		pending, perr := e.store.PendingChanges(wctx)
		e.update(func(p *SyncProgress) {
			p.SyncedItems++
			if perr == nil {
				p.PendingChanges = pending
			}
		})
		e.log.Debug(ctx, "pushed", "entity", entry.Key().String(), "op", entry.Operation)
		return true, nil
	}

	if ctx.Err() != nil {
		if err := ob.MarkStatus(wctx, entry.ID, models.StatusFailed, interruptedReason); err != nil {
			return false, err
		}
		return false, cause(ctx)
	}

	if e.backoff.Exhausted(entry.Attempts) {
		if err := ob.MarkStatus(wctx, entry.ID, models.StatusDead, rerr.Error()); err != nil {
			return false, err
		}
		e.update(func(p *SyncProgress) { p.DeadItems++ })
		e.log.Error(ctx, "outbox entry dead-lettered",
			"entity", entry.Key().String(), "op", entry.Operation, "attempts", entry.Attempts, "error", rerr)
		return false, nil
	}

	if err := ob.MarkStatus(wctx, entry.ID, models.StatusFailed, rerr.Error()); err != nil {
		return false, err
	}
	if delay := e.backoff.Delay(entry.Attempts); delay > 0 {
		at := e.now().Add(delay).Unix()
		if err := ob.ScheduleRetry(wctx, entry.ID, at); err != nil {
			return false, err
		}
	}
	e.update(func(p *SyncProgress) { p.FailedItems++ })
	e.log.Warn(ctx, "push failed",
		"entity", entry.Key().String(), "op", entry.Operation, "attempts", entry.Attempts, "error", rerr)
	return false, nil
}

// dispatch performs the remote call for entry and returns the server version
// it produced, zero when unknown.
func (e *Engine) dispatch(ctx context.Context, entry *models.OutboxEntry) (int64, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()

	var (
		row *models.RemoteRow
		err error
	)
	switch entry.Operation {
	case models.OpCreate:
		row, err = e.remote.Create(cctx, entry.EntityType, entry.EntityID, entry.Payload)
	case models.OpUpdate:
		row, err = e.remote.Update(cctx, entry.EntityType, entry.EntityID, entry.Payload)
	case models.OpDelete:
		err = e.remote.Delete(cctx, entry.EntityType, entry.EntityID)
	default:
		return 0, fmt.Errorf("%w: %q", common.ErrUnknownOperation, entry.Operation)
	}
	if err != nil || row == nil {
		return 0, err
	}
	return row.Version, nil
}

func (e *Engine) pull(ctx context.Context, resolver Resolver) error {
	meta := e.store.Metadata()

	for _, t := range models.AllEntityTypes() {
		if ctx.Err() != nil {
			return cause(ctx)
		}
		if err := e.pullCollection(ctx, meta, t, resolver); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return cause(ctx)
	}
	return meta.SetInt(ctx, common.WatermarkKey, e.now().Unix())
}

// pullCollection fetches and applies one collection. Fetch failures are
// logged and swallowed; storage failures are returned.
func (e *Engine) pullCollection(ctx context.Context, meta metadata.Repository, t models.EntityType, resolver Resolver) error {
	cursorKey := common.CursorKeyPrefix + string(t)
	cursor, hasCursor, err := meta.GetInt(ctx, cursorKey)
	if err != nil {
		return err
	}

	cctx, cancel := e.callCtx(ctx)
	var rows []models.RemoteRow
	if hasCursor {
		rows, err = e.remote.ListSince(cctx, t, cursor)
	} else {
		rows, err = e.remote.ListAll(cctx, t)
	}
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return cause(ctx)
		}
		e.log.Warn(ctx, "pull failed", "collection", t, "error", err)
		return nil
	}

	applied := 0
	maxVersion := cursor
	for i := range rows {
		if ctx.Err() != nil {
			return cause(ctx)
		}
		remote := &rows[i]
		changed, err := e.store.Reconcile(ctx, t, remote, resolver.ShouldAcceptServer)
		if err != nil {
			return err
		}
		if changed {
			applied++
		}
		if remote.Version > maxVersion {
			maxVersion = remote.Version
		}
	}

	if ctx.Err() != nil {
		return cause(ctx)
	}
	if maxVersion > cursor || !hasCursor {
		if err := meta.SetInt(ctx, cursorKey, maxVersion); err != nil {
			return err
		}
	}
	e.log.Debug(ctx, "pulled", "collection", t, "received", len(rows), "applied", applied)
	return nil
}

// StartAutoSync runs a non-forced Sync every interval until StopAutoSync,
// Close or ctx cancellation. Calling it again restarts the timer.
func (e *Engine) StartAutoSync(ctx context.Context, interval time.Duration) {
	e.StopAutoSync()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	actx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.autoStop = cancel
	e.autoDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.Sync(actx, false); err != nil && !errors.Is(err, ErrOffline) {
					e.log.Warn(actx, "periodic sync failed", "error", err)
				}
			case <-actx.Done():
				return
			}
		}
	}()
}

func (e *Engine) StopAutoSync() {
	e.mu.Lock()
	stop, done := e.autoStop, e.autoDone
	e.autoStop, e.autoDone = nil, nil
	e.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Stop halts the periodic trigger, cancels a running cycle and waits until
// it has finished writing. Sync fails with ErrStopped until resume is
// called; resume does not restart the periodic trigger. Nested Stops need
// one resume each.
func (e *Engine) Stop(ctx context.Context) (resume func(), err error) {
	e.StopAutoSync()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return func() {}, ErrClosed
	}
	e.stopped++
	run := e.running
	e.mu.Unlock()

	var once sync.Once
	resume = func() {
		once.Do(func() {
			e.mu.Lock()
			e.stopped--
			e.mu.Unlock()
		})
	}

	if run != nil {
		run.cancel(ErrStopped)
		select {
		case <-run.done:
		case <-ctx.Done():
			resume()
			return func() {}, ctx.Err()
		}
	}
	return resume, nil
}

// Close unsubscribes from the monitor, stops the periodic trigger, cancels
// a running cycle and waits for background cycles to return.
func (e *Engine) Close() {
	e.StopAutoSync()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	run := e.running
	e.mu.Unlock()

	e.unsub()
	e.baseCancel()
	if run != nil {
		run.cancel(ErrClosed)
		<-run.done
	}
	e.bg.Wait()
}
