// Package services holds the server's business logic on top of the
// repositories.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/server/models"
	"github.com/dmitrijs2005/ledgersync/internal/server/repositories/repomanager"
)

// RecordService applies client mutations. Every write bumps the owner's
// version counter and stamps the new value on the record, so List(since)
// returns exactly the records changed after a client's cursor.
type RecordService struct {
	repos repomanager.RepositoryManager
	now   func() time.Time
}

func NewRecordService(repos repomanager.RepositoryManager, now func() time.Time) *RecordService {
	if now == nil {
		now = time.Now
	}
	return &RecordService{repos: repos, now: now}
}

func validate(userID, recordType, id string, needID bool) error {
	if userID == "" {
		return common.ErrorUnauthorized
	}
	if !models.ValidKind(recordType) {
		return fmt.Errorf("%w: %q", common.ErrUnknownEntityType, recordType)
	}
	if needID && id == "" {
		return common.ErrEmptyID
	}
	return nil
}

// compact drops null fields.
func compact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Create stores fields as the full content of the record, replacing any
// earlier version. Retrying a create is therefore harmless.
func (s *RecordService) Create(ctx context.Context, userID, recordType, id string, fields map[string]any) (*models.Record, error) {
	if err := validate(userID, recordType, id, true); err != nil {
		return nil, err
	}

	var out *models.Record
	err := s.repos.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		version, err := r.Users().IncrementCurrentVersion(ctx, userID)
		if err != nil {
			return err
		}
		rec := &models.Record{
			UserID:    userID,
			Type:      recordType,
			ID:        id,
			Fields:    compact(fields),
			Version:   version,
			UpdatedAt: s.now().Unix(),
		}
		if err := r.Records().Upsert(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update merges patch into the record, a null value removing the field.
// An absent record is created from the patch. A tombstone is returned
// unchanged.
func (s *RecordService) Update(ctx context.Context, userID, recordType, id string, patch map[string]any) (*models.Record, error) {
	if err := validate(userID, recordType, id, true); err != nil {
		return nil, err
	}

	var out *models.Record
	err := s.repos.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		version, err := r.Users().IncrementCurrentVersion(ctx, userID)
		if err != nil {
			return err
		}

		rec, err := r.Records().Get(ctx, userID, recordType, id)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			rec = &models.Record{UserID: userID, Type: recordType, ID: id, Fields: map[string]any{}}
		case err != nil:
			return err
		case rec.Deleted():
			out = rec
			return nil
		}

		for k, v := range patch {
			if v == nil {
				delete(rec.Fields, k)
				continue
			}
			rec.Fields[k] = v
		}
		rec.Version = version
		rec.UpdatedAt = s.now().Unix()
		if err := r.Records().Upsert(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete turns the record into a tombstone. Deleting an absent record or a
// tombstone succeeds without changes.
func (s *RecordService) Delete(ctx context.Context, userID, recordType, id string) error {
	if err := validate(userID, recordType, id, true); err != nil {
		return err
	}

	return s.repos.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		version, err := r.Users().IncrementCurrentVersion(ctx, userID)
		if err != nil {
			return err
		}

		rec, err := r.Records().Get(ctx, userID, recordType, id)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil
		case err != nil:
			return err
		case rec.Deleted():
			return nil
		}

		now := s.now().Unix()
		rec.DeletedAt = &now
		rec.UpdatedAt = now
		rec.Version = version
		return r.Records().Upsert(ctx, rec)
	})
}

// List returns records of recordType changed after version since, oldest
// first, tombstones included.
func (s *RecordService) List(ctx context.Context, userID, recordType string, since int64) ([]*models.Record, error) {
	if err := validate(userID, recordType, "", false); err != nil {
		return nil, err
	}

	var out []*models.Record
	err := s.repos.WithTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		out, err = r.Records().SelectUpdated(ctx, userID, recordType, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
