package syncer

import (
	"fmt"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
)

// Policy names a conflict resolution strategy.
type Policy string

const (
	PolicyServerWins Policy = "server-wins"
	PolicyClientWins Policy = "client-wins"
	PolicyMerge      Policy = "merge"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyServerWins, PolicyClientWins, PolicyMerge:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// Resolver decides whether a pulled server row replaces the local one.
// Implementations must be pure: the engine applies the decision.
type Resolver interface {
	ShouldAcceptServer(local *models.Row, server *models.RemoteRow) bool
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(local *models.Row, server *models.RemoteRow) bool

func (f ResolverFunc) ShouldAcceptServer(local *models.Row, server *models.RemoteRow) bool {
	return f(local, server)
}

// MergeFunc is the caller-supplied decision used by PolicyMerge.
type MergeFunc func(local *models.Row, server *models.RemoteRow) bool

// NewResolver builds the resolver for p. merge is required for PolicyMerge
// and ignored otherwise.
func NewResolver(p Policy, merge MergeFunc) (Resolver, error) {
	switch p {
	case PolicyServerWins, "":
		return ResolverFunc(func(*models.Row, *models.RemoteRow) bool { return true }), nil
	case PolicyClientWins:
		return ResolverFunc(func(*models.Row, *models.RemoteRow) bool { return false }), nil
	case PolicyMerge:
		if merge == nil {
			return nil, fmt.Errorf("policy %s needs a merge function", p)
		}
		return ResolverFunc(merge), nil
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", p)
	}
}

// NewerWins accepts the server row when it was updated no earlier than the
// local one, or when the local row has nothing unsynced.
func NewerWins(local *models.Row, server *models.RemoteRow) bool {
	if local.Synced {
		return true
	}
	return server.UpdatedAt >= local.UpdatedAt
}
