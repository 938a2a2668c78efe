// Package store is the client's Local Store: durable entity rows with sync
// metadata, coupled to the outbox so that a row is never dirty without a
// queued mutation for it.
//
// Every mutation of a row runs in one SQLite transaction and under a per-row
// lock, so a UI write and a pull-apply for the same id never interleave.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/ledgersync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ledgersync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/dbx"
	"github.com/dmitrijs2005/ledgersync/internal/logging"
	"github.com/google/uuid"
)

type Store struct {
	db    *sql.DB
	locks *rowLocks
	now   func() time.Time
	log   logging.Logger
}

// New returns a Store over db, which must already carry the client schema.
// A nil now defaults to time.Now.
func New(db *sql.DB, logger logging.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{
		db:    db,
		locks: newRowLocks(),
		now:   now,
		log:   logger.With("module", "store"),
	}
}

// Outbox returns the mutation log bound to the store database.
func (s *Store) Outbox() outbox.Repository {
	return outbox.NewSQLiteRepository(s.db)
}

// Metadata returns the key/value repository bound to the store database.
func (s *Store) Metadata() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

func (s *Store) withRow(ctx context.Context, t models.EntityType, id string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	unlock := s.locks.lock(models.EntityKey{Type: t, ID: id}.String())
	defer unlock()
	return dbx.WithTx(ctx, s.db, nil, fn)
}

// Write applies patch to the row (inserting it if absent), bumps
// local_version and marks it dirty. With queueSync a CREATE or UPDATE entry
// carrying a snapshot of the row is appended in the same transaction.
// An empty id gets a fresh uuid. Writing to a tombstone fails with
// common.ErrTombstoned.
func (s *Store) Write(ctx context.Context, t models.EntityType, id string, patch models.Fields, queueSync bool) (string, error) {
	if _, err := t.Table(); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	err := s.withRow(ctx, t, id, func(ctx context.Context, tx dbx.DBTX) error {
		repo := entities.NewSQLiteRepository(tx)
		now := s.now()

		row, err := repo.Get(ctx, t, id)
		op := models.OpUpdate
		switch {
		case errors.Is(err, common.ErrorNotFound):
			op = models.OpCreate
			row = &models.Row{Type: t, ID: id, Fields: models.Fields{}, CreatedAt: now.Unix()}
		case err != nil:
			return err
		case row.Deleted():
			return fmt.Errorf("%w: %s/%s", common.ErrTombstoned, t, id)
		}

		row.Fields = row.Fields.Merge(patch)
		row.LocalVersion++
		row.Synced = false
		row.UpdatedAt = now.Unix()
		if err := repo.Upsert(ctx, row); err != nil {
			return err
		}
		if !queueSync {
			return nil
		}
		return s.enqueue(ctx, tx, row, op, snapshot(row.Fields, patch), now)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// snapshot copies fields and keeps explicit removals from patch as nulls so
// a partial update can carry them to the server.
func snapshot(fields, patch models.Fields) models.Fields {
	out := fields.Clone()
	for k, v := range patch {
		if v == nil {
			out[k] = nil
		}
	}
	return out
}

func (s *Store) enqueue(ctx context.Context, tx dbx.DBTX, row *models.Row, op models.Operation, payload models.Fields, now time.Time) error {
	e := &models.OutboxEntry{
		EntityType: row.Type,
		EntityID:   row.ID,
		Operation:  op,
		Payload:    payload,
		CreatedAt:  now.UnixNano(),
	}
	_, err := outbox.NewSQLiteRepository(tx).Enqueue(ctx, e)
	return err
}

// SoftDelete marks the row as a tombstone and enqueues a DELETE. Deleting a
// tombstone again is a no-op.
func (s *Store) SoftDelete(ctx context.Context, t models.EntityType, id string) error {
	return s.withRow(ctx, t, id, func(ctx context.Context, tx dbx.DBTX) error {
		repo := entities.NewSQLiteRepository(tx)
		row, err := repo.Get(ctx, t, id)
		if err != nil {
			return err
		}
		if row.Deleted() {
			return nil
		}

		now := s.now()
		ts := now.Unix()
		row.DeletedAt = &ts
		row.UpdatedAt = ts
		row.LocalVersion++
		row.Synced = false
		if err := repo.Upsert(ctx, row); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, row, models.OpDelete, row.Fields.Clone(), now)
	})
}

// MarkSynced records a confirmed push. The row only becomes clean when no
// outstanding outbox entry remains for it. A zero serverVersion
// leaves the stored one untouched.
func (s *Store) MarkSynced(ctx context.Context, t models.EntityType, id string, serverVersion int64) error {
	return s.withRow(ctx, t, id, func(ctx context.Context, tx dbx.DBTX) error {
		return s.markSynced(ctx, tx, models.EntityKey{Type: t, ID: id}, serverVersion)
	})
}

func (s *Store) markSynced(ctx context.Context, tx dbx.DBTX, key models.EntityKey, serverVersion int64) error {
	n, err := outbox.NewSQLiteRepository(tx).CountOutstandingFor(ctx, key)
	if err != nil {
		return err
	}
	return entities.NewSQLiteRepository(tx).MarkSynced(ctx, key.Type, key.ID, serverVersion, s.now().Unix(), n == 0)
}

// AcknowledgePush completes a processing entry and marks its row synced in
// one transaction.
func (s *Store) AcknowledgePush(ctx context.Context, e *models.OutboxEntry, serverVersion int64) error {
	return s.withRow(ctx, e.EntityType, e.EntityID, func(ctx context.Context, tx dbx.DBTX) error {
		if err := outbox.NewSQLiteRepository(tx).MarkStatus(ctx, e.ID, models.StatusCompleted, ""); err != nil {
			return err
		}
		err := s.markSynced(ctx, tx, e.Key(), serverVersion)
		if errors.Is(err, common.ErrorNotFound) {
			// row wiped by Clear while the push was in flight
			return nil
		}
		return err
	})
}

// Decision tells Reconcile whether a server row replaces the local one.
type Decision func(local *models.Row, server *models.RemoteRow) bool

// Reconcile applies a pulled server row. An absent local row is inserted as
// synced; a present one is overwritten and marked synced only if accept
// says so. Nothing is enqueued and local_version is left alone. It reports
// whether the row changed.
func (s *Store) Reconcile(ctx context.Context, t models.EntityType, remote *models.RemoteRow, accept Decision) (bool, error) {
	applied := false
	err := s.withRow(ctx, t, remote.ID, func(ctx context.Context, tx dbx.DBTX) error {
		repo := entities.NewSQLiteRepository(tx)
		local, err := repo.Get(ctx, t, remote.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			if remote.Deleted() {
				return nil
			}
			local = nil
		case err != nil:
			return err
		}

		if local != nil {
			if local.Synced && local.ServerVersion == remote.Version && sameDeletion(local, remote) &&
				models.SameFields(local.Fields, remote.Fields) {
				return nil
			}
			if !accept(local, remote) {
				return nil
			}
		}

		row := s.fromRemote(t, local, remote)
		if err := repo.Upsert(ctx, row); err != nil {
			return err
		}
		applied = true
		// an accepted server row is clean even if local pushes are still queued
		return repo.MarkSynced(ctx, t, remote.ID, remote.Version, s.now().Unix(), true)
	})
	return applied, err
}

func (s *Store) fromRemote(t models.EntityType, local *models.Row, remote *models.RemoteRow) *models.Row {
	now := s.now().Unix()
	row := &models.Row{Type: t, ID: remote.ID, CreatedAt: now}
	if local != nil {
		*row = *local
	}
	row.Fields = remote.Fields.Clone()
	row.UpdatedAt = remote.UpdatedAt
	if row.UpdatedAt == 0 {
		row.UpdatedAt = now
	}
	row.DeletedAt = nil
	if remote.DeletedAt != nil {
		v := *remote.DeletedAt
		row.DeletedAt = &v
	}
	row.ServerVersion = remote.Version
	row.Synced = false
	return row
}

func sameDeletion(local *models.Row, remote *models.RemoteRow) bool {
	return local.Deleted() == remote.Deleted()
}

// Get returns a live row. Tombstones are reported as common.ErrorNotFound
// unless includeDeleted is set.
func (s *Store) Get(ctx context.Context, t models.EntityType, id string, includeDeleted bool) (*models.Row, error) {
	row, err := entities.NewSQLiteRepository(s.db).Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if row.Deleted() && !includeDeleted {
		return nil, common.ErrorNotFound
	}
	return row, nil
}

func (s *Store) List(ctx context.Context, t models.EntityType, includeDeleted bool) ([]models.Row, error) {
	return entities.NewSQLiteRepository(s.db).List(ctx, t, includeDeleted)
}

// ListDirty returns every unsynced row across all kinds.
func (s *Store) ListDirty(ctx context.Context) ([]models.Row, error) {
	repo := entities.NewSQLiteRepository(s.db)
	var out []models.Row
	for _, t := range models.AllEntityTypes() {
		rows, err := repo.ListDirty(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// PendingChanges counts outbox entries that have not been confirmed.
func (s *Store) PendingChanges(ctx context.Context) (int, error) {
	return s.Outbox().CountOutstanding(ctx)
}

// Clear wipes rows, outbox and metadata.
func (s *Store) Clear(ctx context.Context) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entities.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		if err := outbox.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	s.log.Info(ctx, "local data cleared")
	return nil
}
