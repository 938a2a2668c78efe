// Package models defines client-side data models: synchronized entity rows,
// their remote counterparts, and outbox entries.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/ledgersync/internal/common"
)

// EntityType classifies an entity kind. Each kind has its own local table.
type EntityType string

const (
	EntityAccount     EntityType = "account"
	EntityCategory    EntityType = "category"
	EntityTransaction EntityType = "transaction"
	EntityBudget      EntityType = "budget"
	EntityGoal        EntityType = "goal"
)

var entityTables = map[EntityType]string{
	EntityAccount:     "accounts",
	EntityCategory:    "categories",
	EntityTransaction: "transactions",
	EntityBudget:      "budgets",
	EntityGoal:        "goals",
}

// AllEntityTypes returns every entity kind in pull order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityAccount, EntityCategory, EntityTransaction, EntityBudget, EntityGoal}
}

// ParseEntityType validates s and converts it to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if _, ok := entityTables[t]; !ok {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownEntityType, s)
	}
	return t, nil
}

// Table returns the local table name for t. Only whitelisted names are ever
// returned, so the result is safe to interpolate into SQL.
func (t EntityType) Table() (string, error) {
	name, ok := entityTables[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownEntityType, string(t))
	}
	return name, nil
}

// Fields holds the domain fields of a row as decoded JSON values.
type Fields map[string]any

// Clone returns a deep copy of f, detached from any later edits.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		out := make(Fields, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out
	}
	out := Fields{}
	_ = json.Unmarshal(b, &out)
	return out
}

// Merge returns a copy of f with every key of patch applied on top.
// A nil value in patch removes the key.
func (f Fields) Merge(patch Fields) Fields {
	out := f.Clone()
	for k, v := range patch.Clone() {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Row is one locally persisted entity together with its sync metadata.
// Timestamps are unix seconds.
type Row struct {
	Type EntityType
	ID   string

	Fields Fields

	CreatedAt int64
	UpdatedAt int64
	// DeletedAt is set for tombstones, which are kept until their DELETE is synced.
	DeletedAt *int64

	// Synced is true iff the current value matches what was last pushed or pulled.
	Synced bool
	// LocalVersion is bumped on every local mutation.
	LocalVersion int64
	// ServerVersion is the last version acknowledged by the server (advisory).
	ServerVersion int64
	LastSyncedAt  *int64
}

// Deleted reports whether r is a tombstone.
func (r *Row) Deleted() bool {
	return r.DeletedAt != nil
}

// RemoteRow is an entity as returned by the server.
type RemoteRow struct {
	ID        string
	Fields    Fields
	Version   int64
	UpdatedAt int64
	DeletedAt *int64
}

// Deleted reports whether the server holds r as a tombstone.
func (r *RemoteRow) Deleted() bool {
	return r.DeletedAt != nil
}
