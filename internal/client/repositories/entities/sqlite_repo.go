package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/dbx"
)

const rowColumns = `id, data, created_at, updated_at, deleted_at, synced, local_version, server_version, last_synced_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner, t models.EntityType) (*models.Row, error) {
	var (
		r            = &models.Row{Type: t}
		data         string
		deletedAt    sql.NullInt64
		lastSyncedAt sql.NullInt64
		synced       int
	)
	if err := s.Scan(&r.ID, &data, &r.CreatedAt, &r.UpdatedAt, &deletedAt, &synced,
		&r.LocalVersion, &r.ServerVersion, &lastSyncedAt); err != nil {
		return nil, err
	}
	r.Fields = models.Fields{}
	if err := json.Unmarshal([]byte(data), &r.Fields); err != nil {
		return nil, fmt.Errorf("decode %s/%s data: %w", t, r.ID, err)
	}
	if deletedAt.Valid {
		v := deletedAt.Int64
		r.DeletedAt = &v
	}
	if lastSyncedAt.Valid {
		v := lastSyncedAt.Int64
		r.LastSyncedAt = &v
	}
	r.Synced = synced == 1
	return r, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, t models.EntityType, id string) (*models.Row, error) {
	table, err := t.Table()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + rowColumns + ` FROM ` + table + ` WHERE id = ?`
	row, err := scanRow(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", t, id, err)
	}
	return row, nil
}

func (r *SQLiteRepository) List(ctx context.Context, t models.EntityType, includeDeleted bool) ([]models.Row, error) {
	table, err := t.Table()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + rowColumns + ` FROM ` + table
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, id`
	return r.query(ctx, t, query)
}

func (r *SQLiteRepository) ListDirty(ctx context.Context, t models.EntityType) ([]models.Row, error) {
	table, err := t.Table()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, t, `SELECT `+rowColumns+` FROM `+table+` WHERE synced = 0 ORDER BY created_at, id`)
}

func (r *SQLiteRepository) query(ctx context.Context, t models.EntityType, query string, args ...any) ([]models.Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s rows: %w", t, err)
	}
	defer rows.Close()

	var result []models.Row
	for rows.Next() {
		item, err := scanRow(rows, t)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert writes every column of row. On conflict the stored values are
// replaced, created_at excepted.
func (r *SQLiteRepository) Upsert(ctx context.Context, row *models.Row) error {
	table, err := row.Type.Table()
	if err != nil {
		return err
	}
	data, err := json.Marshal(row.Fields.Clone())
	if err != nil {
		return fmt.Errorf("encode %s/%s data: %w", row.Type, row.ID, err)
	}

	query := `INSERT INTO ` + table + ` (` + rowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			synced = excluded.synced,
			local_version = excluded.local_version,
			server_version = excluded.server_version,
			last_synced_at = excluded.last_synced_at`

	_, err = r.db.ExecContext(ctx, query,
		row.ID, string(data), row.CreatedAt, row.UpdatedAt, nullable(row.DeletedAt),
		boolInt(row.Synced), row.LocalVersion, row.ServerVersion, nullable(row.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", row.Type, row.ID, err)
	}
	return nil
}

// MarkSynced stamps last_synced_at and, when serverVersion > 0, the server
// version. synced is written as given so the caller decides cleanliness.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, t models.EntityType, id string, serverVersion, syncedAt int64, synced bool) error {
	table, err := t.Table()
	if err != nil {
		return err
	}
	query := `UPDATE ` + table + ` SET synced = ?, last_synced_at = ?,
		server_version = CASE WHEN ? > 0 THEN ? ELSE server_version END
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, boolInt(synced), syncedAt, serverVersion, serverVersion, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s/%s synced: %w", t, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	for _, t := range models.AllEntityTypes() {
		table, _ := t.Table()
		if _, err := r.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
