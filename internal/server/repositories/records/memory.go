package records

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/server/models"
)

type recordKey struct {
	userID, recordType, id string
}

// MemoryRepository keeps records in a map. It does no locking of its own;
// callers serialize access (see repomanager.MemoryRepositoryManager).
// Records are cloned on the way in and out.
type MemoryRepository struct {
	rows map[recordKey]*models.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[recordKey]*models.Record)}
}

func (r *MemoryRepository) Get(_ context.Context, userID, recordType, id string) (*models.Record, error) {
	rec, ok := r.rows[recordKey{userID, recordType, id}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, rec *models.Record) error {
	r.rows[recordKey{rec.UserID, rec.Type, rec.ID}] = rec.Clone()
	return nil
}

func (r *MemoryRepository) SelectUpdated(_ context.Context, userID, recordType string, minVersion int64) ([]*models.Record, error) {
	var result []*models.Record
	for k, rec := range r.rows {
		if k.userID == userID && k.recordType == recordType && rec.Version > minVersion {
			result = append(result, rec.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}
