// Package records persists synced entities on the server.
package records

import (
	"context"

	"github.com/dmitrijs2005/ledgersync/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the record does not exist.
	Get(ctx context.Context, userID, recordType, id string) (*models.Record, error)
	// Upsert stores r, replacing any record with the same (user, type, id).
	Upsert(ctx context.Context, r *models.Record) error
	// SelectUpdated returns records with version > minVersion in version
	// order, tombstones included.
	SelectUpdated(ctx context.Context, userID, recordType string, minVersion int64) ([]*models.Record, error)
}
