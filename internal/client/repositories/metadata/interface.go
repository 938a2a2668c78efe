package metadata

import (
	"context"
)

// Repository is a small key/value store for sync bookkeeping: pull cursors,
// the last pull watermark and the saved resolver policy.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	// GetInt returns (0, false, nil) when the key is absent.
	GetInt(ctx context.Context, key string) (int64, bool, error)
	SetInt(ctx context.Context, key string, v int64) error
}
