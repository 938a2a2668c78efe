// Package users stores per-user sync state: the monotonic version counter
// stamped on every record write.
package users

import "context"

type Repository interface {
	// IncrementCurrentVersion bumps the user's counter and returns the new
	// value. The user is created on first use.
	IncrementCurrentVersion(ctx context.Context, userID string) (int64, error)
	// GetCurrentVersion returns the counter, 0 for an unknown user.
	GetCurrentVersion(ctx context.Context, userID string) (int64, error)
}
