// Package entities provides the client-side persistence layer for synchronized
// entity rows (accounts, categories, transactions, budgets, goals).
//
// # Overview
//
// The package defines a Repository interface for reading and writing rows of
// every entity kind. A SQLite-backed implementation (SQLiteRepository) stores
// each kind in its own table and persists data using a dbx.DBTX (either
// *sql.DB or *sql.Tx), so callers can bind it to a transaction.
//
// # Data Model
//
// Each row stores its domain fields as a JSON object in the data column plus
// sync metadata: synced flag, local_version, server_version, last_synced_at
// and a nullable deleted_at that marks tombstones. Listing excludes
// tombstones unless explicitly requested.
//
// # Concurrency
//
// The repository does no locking of its own. Row-level serialization of
// concurrent writers is the job of the store package.
//
// Key Types
//
//   - type Repository        - interface used by the store
//   - type SQLiteRepository  - SQLite implementation over dbx.DBTX
//
// Typical Usage
//
//	repo := entities.NewSQLiteRepository(tx)
//	row, _ := repo.Get(ctx, models.EntityAccount, id)
//	_ = repo.Upsert(ctx, row)
//	dirty, _ := repo.ListDirty(ctx, models.EntityAccount)
package entities
