package users

import "context"

// MemoryRepository keeps counters in a map. It does no locking of its own;
// callers serialize access (see repomanager.MemoryRepositoryManager).
type MemoryRepository struct {
	versions map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{versions: make(map[string]int64)}
}

func (r *MemoryRepository) IncrementCurrentVersion(_ context.Context, userID string) (int64, error) {
	r.versions[userID]++
	return r.versions[userID], nil
}

func (r *MemoryRepository) GetCurrentVersion(_ context.Context, userID string) (int64, error) {
	return r.versions[userID], nil
}
