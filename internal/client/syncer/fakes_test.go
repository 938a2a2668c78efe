package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/client/netmon"
	"github.com/dmitrijs2005/ledgersync/internal/client/store"
	"github.com/dmitrijs2005/ledgersync/internal/testutil"
)

// fakeRemote is an in-memory upsert-by-id server.
type fakeRemote struct {
	mu      sync.Mutex
	version int64
	rows    map[models.EntityType]map[string]*models.RemoteRow
	calls   []string
	lists   []listCall

	// fail is consulted before a mutation is applied.
	fail func(op string, t models.EntityType, id string) error
	// loseAck is consulted after a mutation was applied; an error simulates
	// a lost acknowledgement.
	loseAck func(op string, t models.EntityType, id string) error
	// block runs at the start of every mutation, outside the lock.
	block func(ctx context.Context) error
	// afterWrite may change the stored row after a successful mutation, as
	// another device would.
	afterWrite func(t models.EntityType, row *models.RemoteRow)
	listErr    map[models.EntityType]error
	listPanic  bool
	// listHook runs before a collection is read, outside the lock. The read
	// goes ahead whatever the context says, like a reply already in flight.
	listHook func(ctx context.Context, t models.EntityType)
}

type listCall struct {
	Type  models.EntityType
	Since int64
	All   bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:    make(map[models.EntityType]map[string]*models.RemoteRow),
		listErr: make(map[models.EntityType]error),
	}
}

func copyRow(r *models.RemoteRow) *models.RemoteRow {
	c := *r
	c.Fields = r.Fields.Clone()
	if r.DeletedAt != nil {
		d := *r.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// seed stores a row as if another device had written it.
func (f *fakeRemote) seed(t models.EntityType, id string, fields models.Fields) *models.RemoteRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version++
	row := &models.RemoteRow{ID: id, Fields: fields.Clone(), Version: f.version, UpdatedAt: 1_800_000_000 + f.version}
	f.table(t)[id] = row
	return copyRow(row)
}

func (f *fakeRemote) table(t models.EntityType) map[string]*models.RemoteRow {
	m, ok := f.rows[t]
	if !ok {
		m = make(map[string]*models.RemoteRow)
		f.rows[t] = m
	}
	return m
}

func (f *fakeRemote) get(t models.EntityType, id string) *models.RemoteRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.table(t)[id]; ok {
		return copyRow(r)
	}
	return nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) listLog() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]listCall(nil), f.lists...)
}

func (f *fakeRemote) count(t models.EntityType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(t))
}

func (f *fakeRemote) mutate(ctx context.Context, op string, t models.EntityType, id string, apply func(cur *models.RemoteRow) *models.RemoteRow) (*models.RemoteRow, error) {
	if f.block != nil {
		if err := f.block(ctx); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s/%s", op, t, id))
	if f.fail != nil {
		if err := f.fail(op, t, id); err != nil {
			return nil, err
		}
	}

	tbl := f.table(t)
	next := apply(tbl[id])
	if next != nil {
		tbl[id] = next
	}
	var out *models.RemoteRow
	if r, ok := tbl[id]; ok {
		out = copyRow(r)
		if f.afterWrite != nil {
			f.afterWrite(t, r)
		}
	}

	if f.loseAck != nil {
		if err := f.loseAck(op, t, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *fakeRemote) bump() int64 {
	f.version++
	return f.version
}

func (f *fakeRemote) Create(ctx context.Context, t models.EntityType, id string, payload models.Fields) (*models.RemoteRow, error) {
	return f.mutate(ctx, "CREATE", t, id, func(cur *models.RemoteRow) *models.RemoteRow {
		v := f.bump()
		return &models.RemoteRow{ID: id, Fields: payload.Clone(), Version: v, UpdatedAt: 1_800_000_000 + v}
	})
}

func (f *fakeRemote) Update(ctx context.Context, t models.EntityType, id string, patch models.Fields) (*models.RemoteRow, error) {
	return f.mutate(ctx, "UPDATE", t, id, func(cur *models.RemoteRow) *models.RemoteRow {
		v := f.bump()
		base := models.Fields{}
		if cur != nil {
			base = cur.Fields
		}
		return &models.RemoteRow{ID: id, Fields: base.Merge(patch), Version: v, UpdatedAt: 1_800_000_000 + v}
	})
}

func (f *fakeRemote) Delete(ctx context.Context, t models.EntityType, id string) error {
	_, err := f.mutate(ctx, "DELETE", t, id, func(cur *models.RemoteRow) *models.RemoteRow {
		if cur != nil && cur.DeletedAt != nil {
			return nil
		}
		v := f.bump()
		del := 1_800_000_000 + v
		row := &models.RemoteRow{ID: id, Fields: models.Fields{}, Version: v, UpdatedAt: del, DeletedAt: &del}
		if cur != nil {
			row.Fields = cur.Fields.Clone()
		}
		return row
	})
	return err
}

func (f *fakeRemote) ListAll(ctx context.Context, t models.EntityType) ([]models.RemoteRow, error) {
	if f.listHook != nil {
		f.listHook(ctx, t)
	}
	return f.list(t, 0, true)
}

func (f *fakeRemote) ListSince(ctx context.Context, t models.EntityType, since int64) ([]models.RemoteRow, error) {
	if f.listHook != nil {
		f.listHook(ctx, t)
	}
	return f.list(t, since, false)
}

func (f *fakeRemote) list(t models.EntityType, since int64, all bool) ([]models.RemoteRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, listCall{Type: t, Since: since, All: all})
	if f.listPanic {
		panic("list exploded")
	}
	if err := f.listErr[t]; err != nil {
		return nil, err
	}
	var out []models.RemoteRow
	for _, r := range f.table(t) {
		if r.Version > since {
			out = append(out, *copyRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeRemote) Ping(context.Context) error { return nil }
func (f *fakeRemote) Close() error               { return nil }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *store.Store
	remote  *fakeRemote
	monitor *netmon.Monitor
	clock   *fakeClock
	engine  *Engine
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		remote:  newFakeRemote(),
		monitor: netmon.New(nil, time.Second, nil),
		clock:   newFakeClock(),
	}
	h.store = store.New(testutil.NewClientDB(t), nil, h.clock.Now)
	h.monitor.SetOnline(true)
	if opts.Now == nil {
		opts.Now = h.clock.Now
	}
	h.engine = NewEngine(h.store, h.remote, h.monitor, opts)
	t.Cleanup(h.engine.Close)
	return h
}
