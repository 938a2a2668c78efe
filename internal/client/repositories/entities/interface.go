package entities

import (
	"context"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
)

// Repository describes storage operations on entity rows.
type Repository interface {
	// Get returns a row by id, tombstones included. Missing rows yield
	// common.ErrorNotFound.
	Get(ctx context.Context, t models.EntityType, id string) (*models.Row, error)

	// List returns all rows of kind t ordered by creation time. Tombstones
	// are skipped unless includeDeleted is set.
	List(ctx context.Context, t models.EntityType, includeDeleted bool) ([]models.Row, error)

	// Upsert inserts the row or replaces every column of an existing one.
	Upsert(ctx context.Context, row *models.Row) error

	// MarkSynced records a confirmed push or pull for the row.
	MarkSynced(ctx context.Context, t models.EntityType, id string, serverVersion, syncedAt int64, synced bool) error

	// ListDirty returns rows with synced = false, tombstones included.
	ListDirty(ctx context.Context, t models.EntityType) ([]models.Row, error)

	// Clear removes every row of every kind.
	Clear(ctx context.Context) error
}
