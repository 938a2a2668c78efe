// Package repomanager vends the server repositories bound to one unit of
// work, for PostgreSQL or in-memory storage.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/ledgersync/internal/server/repositories/records"
	"github.com/dmitrijs2005/ledgersync/internal/server/repositories/users"
)

// Repositories are the repositories of one transaction.
type Repositories interface {
	Users() users.Repository
	Records() records.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// WithTx runs fn atomically. Writes of fn are visible to other callers
	// only after it returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close() error
}
