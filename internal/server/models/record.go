// Package models defines server-side data models persisted in the database.
package models

// Kinds lists the record types the server accepts.
var Kinds = map[string]struct{}{
	"account":     {},
	"category":    {},
	"transaction": {},
	"budget":      {},
	"goal":        {},
}

// ValidKind reports whether t is an accepted record type.
func ValidKind(t string) bool {
	_, ok := Kinds[t]
	return ok
}

// Record is one stored entity. Records are scoped by (UserID, Type, ID).
type Record struct {
	UserID string
	Type   string
	ID     string

	Fields map[string]any

	// Version is the server-assigned, monotonic per-user version used for sync.
	Version int64
	// UpdatedAt and DeletedAt are unix seconds. DeletedAt marks a tombstone.
	UpdatedAt int64
	DeletedAt *int64
}

func (r *Record) Deleted() bool {
	return r.DeletedAt != nil
}

// Clone returns a copy of r whose Fields and DeletedAt are not shared.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	if r.DeletedAt != nil {
		d := *r.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}
