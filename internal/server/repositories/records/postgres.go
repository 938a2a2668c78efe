package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/dbx"
	"github.com/dmitrijs2005/ledgersync/internal/server/models"
)

// PostgresRepository implements record storage over a dbx.DBTX (*sql.DB or *sql.Tx).
// Fields are kept in a JSONB column.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner, userID, recordType string) (*models.Record, error) {
	var (
		r       = &models.Record{UserID: userID, Type: recordType}
		fields  []byte
		deleted sql.NullInt64
	)
	if err := s.Scan(&r.ID, &fields, &r.Version, &r.UpdatedAt, &deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &r.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s/%s: %w", recordType, r.ID, err)
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	if deleted.Valid {
		d := deleted.Int64
		r.DeletedAt = &d
	}
	return r, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, recordType, id string) (*models.Record, error) {
	query := `SELECT id, fields, version, updated_at, deleted_at FROM records
		WHERE user_id = $1 AND type = $2 AND id = $3`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, userID, recordType, id), userID, recordType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode fields of %s/%s: %w", rec.Type, rec.ID, err)
	}
	var deleted sql.NullInt64
	if rec.DeletedAt != nil {
		deleted = sql.NullInt64{Int64: *rec.DeletedAt, Valid: true}
	}

	query := `
		INSERT INTO records (user_id, type, id, fields, version, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (user_id, type, id)
		DO UPDATE SET
			fields = EXCLUDED.fields,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at;
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.Type, rec.ID, string(fields), rec.Version, rec.UpdatedAt, deleted)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID, recordType string, minVersion int64) ([]*models.Record, error) {
	query := `SELECT id, fields, version, updated_at, deleted_at FROM records
		WHERE user_id = $1 AND type = $2 AND version > $3
		ORDER BY version`

	rows, err := r.db.QueryContext(ctx, query, userID, recordType, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, userID, recordType)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
