package outbox

import (
	"context"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
)

type Repository interface {
	// Enqueue appends e with status pending. An empty e.ID is replaced with a
	// fresh uuid; e.Seq is filled in.
	Enqueue(ctx context.Context, e *models.OutboxEntry) (string, error)

	// Pending returns entries with status pending, oldest first.
	Pending(ctx context.Context) ([]models.OutboxEntry, error)

	// Outstanding returns every non-completed entry, oldest first.
	Outstanding(ctx context.Context) ([]models.OutboxEntry, error)

	Get(ctx context.Context, id string) (*models.OutboxEntry, error)

	// MarkStatus moves an entry to status to. lastErr replaces the stored
	// error unless empty. Entering processing increments attempts.
	MarkStatus(ctx context.Context, id string, to models.OutboxStatus, lastErr string) error

	// ScheduleRetry sets the earliest unix second the entry may be retried.
	ScheduleRetry(ctx context.Context, id string, at int64) error

	// Requeue moves a dead entry back to pending with attempts reset.
	Requeue(ctx context.Context, id string) error

	// RecoverProcessing moves every processing entry to failed and returns
	// how many were moved.
	RecoverProcessing(ctx context.Context, reason string) (int, error)

	PurgeCompleted(ctx context.Context) (int, error)
	CountOutstanding(ctx context.Context) (int, error)
	CountOutstandingFor(ctx context.Context, key models.EntityKey) (int, error)
	Clear(ctx context.Context) error
}
