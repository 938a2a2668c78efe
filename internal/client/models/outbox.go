package models

import (
	"fmt"

	"github.com/dmitrijs2005/ledgersync/internal/common"
)

// Operation is the kind of mutation an outbox entry carries.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ParseOperation validates s.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpCreate, OpUpdate, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownOperation, s)
	}
}

// OutboxStatus is the lifecycle state of an outbox entry.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "pending"
	StatusProcessing OutboxStatus = "processing"
	StatusFailed     OutboxStatus = "failed"
	StatusCompleted  OutboxStatus = "completed"
	// StatusDead is terminal: the attempt ceiling was reached and the entry
	// waits for an explicit requeue.
	StatusDead OutboxStatus = "dead"
)

// allowedFrom lists, for each target status, the statuses it may be entered from.
var allowedFrom = map[OutboxStatus][]OutboxStatus{
	StatusProcessing: {StatusPending, StatusFailed},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {StatusProcessing},
	StatusDead:       {StatusProcessing},
	StatusPending:    {StatusDead},
}

// AllowedFrom returns the source statuses from which to may be entered.
func AllowedFrom(to OutboxStatus) []OutboxStatus {
	return allowedFrom[to]
}

// CanTransition reports whether from -> to is a legal outbox transition.
func CanTransition(from, to OutboxStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// OutboxEntry is one queued mutation awaiting push.
type OutboxEntry struct {
	ID         string
	Seq        int64
	EntityType EntityType
	EntityID   string
	Operation  Operation
	// Payload is a snapshot of the row fields taken at enqueue time.
	Payload Fields
	// CreatedAt is unix nanoseconds; entries are pushed in (CreatedAt, Seq) order.
	CreatedAt int64
	Attempts  int
	LastError string
	Status    OutboxStatus
	// NextAttemptAt is the earliest unix second at which a failed entry may
	// be pushed again. Zero means immediately.
	NextAttemptAt int64
}

// Key identifies the entity the entry mutates.
func (e *OutboxEntry) Key() EntityKey {
	return EntityKey{Type: e.EntityType, ID: e.EntityID}
}

// EntityKey is the (type, id) pair identifying one row.
type EntityKey struct {
	Type EntityType
	ID   string
}

func (k EntityKey) String() string {
	return string(k.Type) + "/" + k.ID
}
