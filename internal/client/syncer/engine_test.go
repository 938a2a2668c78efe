package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func write(t *testing.T, h *harness, typ models.EntityType, id string, f models.Fields) string {
	t.Helper()
	id, err := h.store.Write(context.Background(), typ, id, f, true)
	require.NoError(t, err)
	return id
}

func row(t *testing.T, h *harness, typ models.EntityType, id string) *models.Row {
	t.Helper()
	r, err := h.store.Get(context.Background(), typ, id, true)
	require.NoError(t, err)
	return r
}

func outstanding(t *testing.T, h *harness) []models.OutboxEntry {
	t.Helper()
	entries, err := h.store.Outbox().Outstanding(context.Background())
	require.NoError(t, err)
	return entries
}

func assertDirtyInvariant(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	dirty, err := h.store.ListDirty(ctx)
	require.NoError(t, err)
	for _, r := range dirty {
		n, err := h.store.Outbox().CountOutstandingFor(ctx, models.EntityKey{Type: r.Type, ID: r.ID})
		require.NoError(t, err)
		require.Positive(t, n, "dirty row %s/%s without outbox entry", r.Type, r.ID)
	}
}

func TestSync_PushesInEnqueueOrder(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	id := write(t, h, models.EntityTransaction, "t1", models.Fields{"account_id": "a", "amount": int64(-100)})
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})
	write(t, h, models.EntityTransaction, id, models.Fields{"amount": int64(-200)})
	write(t, h, models.EntityTransaction, id, models.Fields{"note": "lunch"})
	require.NoError(t, h.store.SoftDelete(ctx, models.EntityTransaction, id))

	require.NoError(t, h.engine.Sync(ctx, false))

	assert.Equal(t, []string{
		"CREATE transaction/t1",
		"CREATE account/a",
		"UPDATE transaction/t1",
		"UPDATE transaction/t1",
		"DELETE transaction/t1",
	}, h.remote.callLog())

	assert.Empty(t, outstanding(t, h))
	r := row(t, h, models.EntityTransaction, id)
	assert.True(t, r.Synced)
	assert.NotNil(t, r.DeletedAt)
	assert.True(t, row(t, h, models.EntityAccount, "a").Synced)

	p := h.engine.Progress()
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 5, p.TotalItems)
	assert.Equal(t, 5, p.SyncedItems)
	assert.Zero(t, p.PendingChanges)
	assert.Equal(t, h.clock.Now(), p.LastSync)
	assert.Empty(t, p.LastError)

	wm, ok, err := h.store.Metadata().GetInt(ctx, common.WatermarkKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, h.clock.Now().Unix(), wm)
}

func TestSync_ClockStepBackKeepsEnqueueOrder(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})
	h.clock.Advance(-time.Hour)
	require.NoError(t, h.store.SoftDelete(ctx, models.EntityAccount, "a"))

	require.NoError(t, h.engine.Sync(ctx, false))

	assert.Equal(t, []string{"CREATE account/a", "DELETE account/a"}, h.remote.callLog())
	srv := h.remote.get(models.EntityAccount, "a")
	require.NotNil(t, srv)
	assert.NotNil(t, srv.DeletedAt)
}

func TestSync_OfflineGuard(t *testing.T) {
	h := newHarness(t, Options{})
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})
	h.monitor.SetOnline(false)

	for _, force := range []bool{false, true} {
		err := h.engine.Sync(context.Background(), force)
		require.ErrorIs(t, err, ErrOffline)
	}
	p := h.engine.Progress()
	assert.Equal(t, StatusError, p.Status)
	assert.Equal(t, "Offline", p.LastError)
	assert.Empty(t, h.remote.callLog())
	assert.Len(t, outstanding(t, h), 1)
}

func TestSync_ServerWinsAfterSuccessfulPush(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// the row is known to both sides
	h.remote.seed(models.EntityAccount, "a", models.Fields{"name": "Cash"})
	require.NoError(t, h.engine.Sync(ctx, false))
	require.True(t, row(t, h, models.EntityAccount, "a").Synced)

	// local edit, and another device edits right after our push lands
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Wallet"})
	local := row(t, h, models.EntityAccount, "a")
	require.Equal(t, int64(1), local.LocalVersion, "pulled rows start at local_version 0")
	require.False(t, local.Synced)

	h.remote.afterWrite = func(_ models.EntityType, r *models.RemoteRow) {
		r.Fields["name"] = "Other device"
		r.Version = 100
	}
	require.NoError(t, h.engine.Sync(ctx, false))

	got := row(t, h, models.EntityAccount, "a")
	assert.Equal(t, models.Fields{"name": "Other device"}, got.Fields)
	assert.True(t, got.Synced)
	assert.Equal(t, int64(100), got.ServerVersion)
}

func TestSync_ConcurrentEditConflict(t *testing.T) {
	for _, tc := range []struct {
		policy     Policy
		wantName   string
		wantSynced bool
	}{
		{PolicyServerWins, "Server", true},
		{PolicyClientWins, "Local", false},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			res, err := NewResolver(tc.policy, nil)
			require.NoError(t, err)
			h := newHarness(t, Options{Resolver: res})
			ctx := context.Background()

			h.remote.seed(models.EntityBudget, "b", models.Fields{"name": "Base"})
			require.NoError(t, h.engine.Sync(ctx, false))

			write(t, h, models.EntityBudget, "b", models.Fields{"name": "Draft"})
			write(t, h, models.EntityBudget, "b", models.Fields{"name": "Local"})
			require.Equal(t, int64(2), row(t, h, models.EntityBudget, "b").LocalVersion)
			h.remote.seed(models.EntityBudget, "b", models.Fields{"name": "Server"})

			// our push cannot get through this cycle
			h.remote.fail = func(string, models.EntityType, string) error { return errBoom }
			require.NoError(t, h.engine.Sync(ctx, false))

			got := row(t, h, models.EntityBudget, "b")
			assert.Equal(t, tc.wantName, got.Fields["name"])
			assert.Equal(t, tc.wantSynced, got.Synced)
			assertDirtyInvariant(t, h)

			// the queued push later succeeds and the row becomes clean
			h.remote.fail = nil
			require.NoError(t, h.engine.Sync(ctx, false))
			got = row(t, h, models.EntityBudget, "b")
			assert.True(t, got.Synced)
			assert.Equal(t, "Local", h.remote.get(models.EntityBudget, "b").Fields["name"])
		})
	}
}

func TestSync_PartialFailureIsolation(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	write(t, h, models.EntityCategory, "A", models.Fields{"name": "Food"})
	write(t, h, models.EntityCategory, "B", models.Fields{"name": "Rent"})
	h.remote.seed(models.EntityGoal, "g", models.Fields{"name": "Trip"})
	h.remote.fail = func(_ string, _ models.EntityType, id string) error {
		if id == "A" {
			return errBoom
		}
		return nil
	}

	require.NoError(t, h.engine.Sync(ctx, false))

	entries := outstanding(t, h)
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].EntityID)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "boom", entries[0].LastError)

	assert.False(t, row(t, h, models.EntityCategory, "A").Synced)
	assert.True(t, row(t, h, models.EntityCategory, "B").Synced)
	assert.True(t, row(t, h, models.EntityGoal, "g").Synced, "pull ran despite the failed push")

	p := h.engine.Progress()
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 1, p.SyncedItems)
	assert.Equal(t, 1, p.FailedItems)
	assert.Equal(t, 1, p.PendingChanges)
}

func TestSync_CreateOfflineThenReconnect(t *testing.T) {
	h := newHarness(t, Options{})
	h.monitor.SetOnline(false)

	id := write(t, h, models.EntityTransaction, "", models.Fields{"account_id": "a", "amount": int64(-990)})
	pending, err := h.store.Outbox().Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, models.OpCreate, pending[0].Operation)

	h.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		r, err := h.store.Get(context.Background(), models.EntityTransaction, id, false)
		return err == nil && r.Synced
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.engine.Progress().Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"CREATE transaction/" + id}, h.remote.callLog())
	assert.Empty(t, outstanding(t, h))
}

func TestSync_IdempotentRetryAfterLostAck(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})
	h.remote.loseAck = func(string, models.EntityType, string) error { return errors.New("connection reset") }
	require.NoError(t, h.engine.Sync(ctx, false))

	entries := outstanding(t, h)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
	assert.False(t, row(t, h, models.EntityAccount, "a").Synced)

	h.remote.loseAck = nil
	require.NoError(t, h.engine.Sync(ctx, false))

	assert.Equal(t, []string{"CREATE account/a", "CREATE account/a"}, h.remote.callLog())
	assert.Equal(t, 1, h.remote.count(models.EntityAccount))
	got := row(t, h, models.EntityAccount, "a")
	assert.True(t, got.Synced)
	assert.Equal(t, models.Fields{"name": "Cash"}, got.Fields)
	assert.Empty(t, outstanding(t, h))
}

func TestSync_BackoffDeadLetterAndRequeue(t *testing.T) {
	h := newHarness(t, Options{Backoff: Backoff{Min: time.Minute, Max: time.Hour, Multiplier: 2, MaxAttempts: 2}})
	ctx := context.Background()

	write(t, h, models.EntityGoal, "g", models.Fields{"name": "Car"})
	write(t, h, models.EntityGoal, "g", models.Fields{"target": int64(500000)})
	h.remote.fail = func(string, models.EntityType, string) error { return errBoom }

	require.NoError(t, h.engine.Sync(ctx, false))
	entries := outstanding(t, h)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
	assert.Equal(t, h.clock.Now().Add(time.Minute).Unix(), entries[0].NextAttemptAt)
	assert.Equal(t, models.StatusPending, entries[1].Status, "later entry of the same row waits")
	p := h.engine.Progress()
	assert.Equal(t, 1, p.FailedItems)
	assert.Equal(t, 1, p.SkippedItems)

	// inside the backoff window nothing is sent
	require.NoError(t, h.engine.Sync(ctx, false))
	assert.Len(t, h.remote.callLog(), 1)
	assert.Equal(t, 2, h.engine.Progress().SkippedItems)

	h.clock.Advance(61 * time.Second)
	require.NoError(t, h.engine.Sync(ctx, false))
	assert.Len(t, h.remote.callLog(), 2)
	entries = outstanding(t, h)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusDead, entries[0].Status)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, 1, h.engine.Progress().DeadItems)

	// dead entries are never retried on their own
	h.clock.Advance(24 * time.Hour)
	h.remote.fail = nil
	require.NoError(t, h.engine.Sync(ctx, false))
	assert.Len(t, h.remote.callLog(), 2)
	p = h.engine.Progress()
	assert.Equal(t, 1, p.DeadItems)
	assert.Equal(t, 1, p.SkippedItems)
	assert.Equal(t, 2, p.PendingChanges)

	require.NoError(t, h.store.Outbox().Requeue(ctx, entries[0].ID))
	require.NoError(t, h.engine.Sync(ctx, false))
	assert.Equal(t, []string{"CREATE goal/g", "CREATE goal/g", "CREATE goal/g", "UPDATE goal/g"}, h.remote.callLog())
	assert.Empty(t, outstanding(t, h))
	assert.True(t, row(t, h, models.EntityGoal, "g").Synced)
}

func TestSync_RecoversInterruptedEntries(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})
	entries := outstanding(t, h)
	require.NoError(t, h.store.Outbox().MarkStatus(ctx, entries[0].ID, models.StatusProcessing, ""))

	require.NoError(t, h.engine.Sync(ctx, false))

	assert.Equal(t, []string{"CREATE account/a"}, h.remote.callLog())
	assert.Empty(t, outstanding(t, h))
	assert.True(t, row(t, h, models.EntityAccount, "a").Synced)
}

func TestSync_SingleFlight(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.block = func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Sync(ctx, false) }()
	<-entered

	assert.Equal(t, StatusSyncing, h.engine.Progress().Status)
	require.NoError(t, h.engine.Sync(ctx, false), "second call is a no-op")

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"CREATE account/a"}, h.remote.callLog())
}

func TestSync_ForceCancelsAndRestarts(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})

	entered := make(chan struct{})
	var calls atomic.Int32
	h.remote.block = func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	errc := make(chan error, 1)
	go func() { errc <- h.engine.Sync(ctx, false) }()
	<-entered

	require.NoError(t, h.engine.Sync(ctx, true))
	require.ErrorIs(t, <-errc, ErrSuperseded)

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, outstanding(t, h), "interrupted entry was retried by the forced cycle")
	assert.True(t, row(t, h, models.EntityAccount, "a").Synced)
	assert.Equal(t, StatusCompleted, h.engine.Progress().Status)
}

func TestSync_DeltaPullUsesCursor(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.remote.seed(models.EntityCategory, "c1", models.Fields{"name": "Food"})
	h.remote.seed(models.EntityCategory, "c2", models.Fields{"name": "Rent"})
	require.NoError(t, h.engine.Sync(ctx, false))

	cursor, ok, err := h.store.Metadata().GetInt(ctx, common.CursorKeyPrefix+"category")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), cursor)

	h.remote.seed(models.EntityCategory, "c3", models.Fields{"name": "Fun"})
	require.NoError(t, h.engine.Sync(ctx, false))

	var categoryCalls []listCall
	for _, c := range h.remote.listLog() {
		if c.Type == models.EntityCategory {
			categoryCalls = append(categoryCalls, c)
		}
	}
	assert.Equal(t, []listCall{
		{Type: models.EntityCategory, Since: 0, All: true},
		{Type: models.EntityCategory, Since: 2, All: false},
	}, categoryCalls)

	rows, err := h.store.List(ctx, models.EntityCategory, false)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSync_PullCollectionFailureIsTolerated(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.remote.seed(models.EntityBudget, "b", models.Fields{"name": "Monthly"})
	h.remote.seed(models.EntityGoal, "g", models.Fields{"name": "Trip"})
	h.remote.listErr[models.EntityBudget] = errors.New("budgets down")

	require.NoError(t, h.engine.Sync(ctx, false))

	_, err := h.store.Get(ctx, models.EntityBudget, "b", true)
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.True(t, row(t, h, models.EntityGoal, "g").Synced)

	_, ok, err := h.store.Metadata().GetInt(ctx, common.CursorKeyPrefix+"budget")
	require.NoError(t, err)
	assert.False(t, ok, "failed collection keeps no cursor")
	assert.Equal(t, StatusCompleted, h.engine.Progress().Status)
}

func TestSync_RemoteTombstoneApplied(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.remote.seed(models.EntityAccount, "a", models.Fields{"name": "Cash"})
	require.NoError(t, h.engine.Sync(ctx, false))
	require.NoError(t, h.remote.Delete(ctx, models.EntityAccount, "a"))
	h.remote.calls = nil

	require.NoError(t, h.engine.Sync(ctx, false))
	_, err := h.store.Get(ctx, models.EntityAccount, "a", false)
	require.ErrorIs(t, err, common.ErrorNotFound)
	r := row(t, h, models.EntityAccount, "a")
	assert.NotNil(t, r.DeletedAt)
	assert.True(t, r.Synced)
}

func TestSync_PanicBecomesError(t *testing.T) {
	h := newHarness(t, Options{})
	h.remote.listPanic = true

	err := h.engine.Sync(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync panic")
	p := h.engine.Progress()
	assert.Equal(t, StatusError, p.Status)
	assert.Contains(t, p.LastError, "list exploded")

	// the guard is released
	h.remote.listPanic = false
	require.NoError(t, h.engine.Sync(context.Background(), false))
}

func TestSync_UsesResolverSetBeforeCycle(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Local"})
	// make the push fail so the row stays dirty during pull
	h.remote.fail = func(string, models.EntityType, string) error { return errBoom }
	h.remote.seed(models.EntityAccount, "a", models.Fields{"name": "Server"})

	var consulted atomic.Int32
	h.engine.SetResolver(ResolverFunc(func(*models.Row, *models.RemoteRow) bool {
		consulted.Add(1)
		return false
	}))
	require.NoError(t, h.engine.Sync(ctx, false))
	assert.Equal(t, int32(1), consulted.Load())
	assert.Equal(t, "Local", row(t, h, models.EntityAccount, "a").Fields["name"])
}

func TestProgressListeners(t *testing.T) {
	h := newHarness(t, Options{})
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})

	var (
		mu   sync.Mutex
		seen []SyncProgress
	)
	unsub := h.engine.AddListener(func(p SyncProgress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	// a panicking listener does not break the others
	h.engine.AddListener(func(SyncProgress) { panic("listener bug") })

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, StatusIdle, seen[0].Status)
	mu.Unlock()

	require.NoError(t, h.engine.Sync(context.Background(), false))

	mu.Lock()
	statuses := make([]Status, 0, len(seen))
	for _, p := range seen {
		statuses = append(statuses, p.Status)
	}
	last := seen[len(seen)-1]
	n := len(seen)
	mu.Unlock()

	assert.Equal(t, StatusSyncing, statuses[1])
	assert.Equal(t, StatusCompleted, last.Status)
	assert.Equal(t, 1, last.SyncedItems)
	assert.Equal(t, 1, last.TotalItems)

	unsub()
	require.NoError(t, h.engine.Sync(context.Background(), false))
	mu.Lock()
	assert.Len(t, seen, n)
	mu.Unlock()
}

func TestProgressListeners_DeliveredInOrder(t *testing.T) {
	h := newHarness(t, Options{})

	var (
		mu   sync.Mutex
		seen []uint64
	)
	h.engine.AddListener(func(p SyncProgress) {
		mu.Lock()
		seen = append(seen, p.Seq)
		mu.Unlock()
	})

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				h.engine.update(func(p *SyncProgress) { p.SyncedItems++ })
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, writers*perWriter+1)
	for i := 1; i < len(seen); i++ {
		require.Equal(t, seen[i-1]+1, seen[i], "delivery %d out of order", i)
	}
	assert.Equal(t, writers*perWriter, h.engine.Progress().SyncedItems)
}

func TestAutoSync(t *testing.T) {
	h := newHarness(t, Options{})
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})

	h.engine.StartAutoSync(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(h.remote.callLog()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	h.engine.StopAutoSync()

	write(t, h, models.EntityAccount, "b", models.Fields{"name": "Card"})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.remote.callLog(), 1)
}

func TestClose(t *testing.T) {
	h := newHarness(t, Options{})
	h.engine.Close()
	require.ErrorIs(t, h.engine.Sync(context.Background(), false), ErrClosed)

	// reconnects no longer trigger cycles
	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})
	h.monitor.SetOnline(false)
	h.monitor.SetOnline(true)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.remote.callLog())
}

func TestSync_DirtyInvariantUnderRandomFailures(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			h := newHarness(t, Options{Backoff: Backoff{MaxAttempts: 3}})
			ctx := context.Background()
			rnd := rand.New(rand.NewSource(seed))
			var rndMu sync.Mutex
			coin := func() bool {
				rndMu.Lock()
				defer rndMu.Unlock()
				return rnd.Intn(3) == 0
			}
			h.remote.fail = func(string, models.EntityType, string) error {
				if coin() {
					return errBoom
				}
				return nil
			}
			h.remote.loseAck = func(string, models.EntityType, string) error {
				if coin() {
					return errors.New("lost ack")
				}
				return nil
			}

			ids := []string{"x", "y", "z"}
			for step := 0; step < 40; step++ {
				id := ids[rnd.Intn(len(ids))]
				switch rnd.Intn(4) {
				case 0, 1:
					_, err := h.store.Write(ctx, models.EntityTransaction, id, models.Fields{"amount": int64(step)}, true)
					if err != nil {
						require.ErrorIs(t, err, common.ErrTombstoned)
					}
				case 2:
					if err := h.store.SoftDelete(ctx, models.EntityTransaction, id); err != nil {
						require.ErrorIs(t, err, common.ErrorNotFound)
					}
				case 3:
					require.NoError(t, h.engine.Sync(ctx, false))
				}
				assertDirtyInvariant(t, h)
			}
		})
	}
}

func TestStop_WaitsForCycleBeforeReturning(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.remote.seed(models.EntityCategory, "c1", models.Fields{"name": "Food"})

	reached := make(chan struct{})
	release := make(chan struct{})
	h.remote.listHook = func(_ context.Context, typ models.EntityType) {
		if typ == models.EntityCategory {
			close(reached)
			<-release
		}
	}

	syncDone := make(chan error, 1)
	go func() { syncDone <- h.engine.Sync(ctx, false) }()
	<-reached

	type stopResult struct {
		resume func()
		err    error
	}
	stopped := make(chan stopResult, 1)
	go func() {
		resume, err := h.engine.Stop(ctx)
		stopped <- stopResult{resume, err}
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}

	// the reply arrives after cancellation
	close(release)
	res := <-stopped
	require.NoError(t, res.err)
	require.ErrorIs(t, <-syncDone, ErrStopped)

	require.NoError(t, h.store.Clear(ctx))
	meta, err := h.store.Metadata().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta, "nothing is written after the wipe")

	require.ErrorIs(t, h.engine.Sync(ctx, true), ErrStopped)

	res.resume()
	res.resume()
	h.remote.listHook = nil
	require.NoError(t, h.engine.Sync(ctx, false))
	assert.Equal(t, "Food", row(t, h, models.EntityCategory, "c1").Fields["name"])
}

func TestStop_CancelsBlockedPush(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	write(t, h, models.EntityAccount, "a", models.Fields{"name": "Cash"})

	started := make(chan struct{})
	var once sync.Once
	h.remote.block = func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}

	syncDone := make(chan error, 1)
	go func() { syncDone <- h.engine.Sync(ctx, false) }()
	<-started

	resume, err := h.engine.Stop(ctx)
	require.NoError(t, err)
	defer resume()
	require.ErrorIs(t, <-syncDone, ErrStopped)

	entries := outstanding(t, h)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusFailed, entries[0].Status)

	require.NoError(t, h.store.Clear(ctx))
	assert.Empty(t, outstanding(t, h))
}

func TestStop_AfterClose(t *testing.T) {
	h := newHarness(t, Options{})
	h.engine.Close()

	resume, err := h.engine.Stop(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	assert.NotPanics(t, resume)
}
