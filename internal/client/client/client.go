package client

import (
	"context"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
)

// Remote is the server contract the sync engine relies on. Create must be
// an upsert by id so a retried push never duplicates a row.
type Remote interface {
	Create(ctx context.Context, t models.EntityType, id string, payload models.Fields) (*models.RemoteRow, error)
	// Update applies a partial patch keyed by id.
	Update(ctx context.Context, t models.EntityType, id string, patch models.Fields) (*models.RemoteRow, error)
	Delete(ctx context.Context, t models.EntityType, id string) error
	ListAll(ctx context.Context, t models.EntityType) ([]models.RemoteRow, error)
	// ListSince returns rows whose server version is greater than since,
	// tombstones included.
	ListSince(ctx context.Context, t models.EntityType, since int64) ([]models.RemoteRow, error)
	Ping(ctx context.Context) error
	Close() error
}
