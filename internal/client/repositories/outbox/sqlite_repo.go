package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/ledgersync/internal/client/models"
	"github.com/dmitrijs2005/ledgersync/internal/common"
	"github.com/dmitrijs2005/ledgersync/internal/dbx"
	"github.com/google/uuid"
)

const entryColumns = `seq, id, entity_type, entity_id, operation, payload, created_at, attempts, last_error, status, next_attempt_at`

const outstandingFilter = `status IN ('pending', 'processing', 'failed', 'dead')`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*models.OutboxEntry, error) {
	var (
		e         models.OutboxEntry
		typ, op   string
		status    string
		payload   string
		lastError sql.NullString
	)
	if err := s.Scan(&e.Seq, &e.ID, &typ, &e.EntityID, &op, &payload, &e.CreatedAt,
		&e.Attempts, &lastError, &status, &e.NextAttemptAt); err != nil {
		return nil, err
	}
	e.EntityType = models.EntityType(typ)
	e.Operation = models.Operation(op)
	e.Status = models.OutboxStatus(status)
	e.LastError = lastError.String
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decode outbox payload %s: %w", e.ID, err)
	}
	return &e, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.OutboxEntry) (string, error) {
	if _, err := e.EntityType.Table(); err != nil {
		return "", err
	}
	if _, err := models.ParseOperation(string(e.Operation)); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload := e.Payload
	if payload == nil {
		payload = models.Fields{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode outbox payload: %w", err)
	}
	e.Status = models.StatusPending

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (id, entity_type, entity_id, operation, payload, created_at, attempts, status, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 'pending', 0)`,
		e.ID, string(e.EntityType), e.EntityID, string(e.Operation), string(data), e.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s %s/%s: %w", e.Operation, e.EntityType, e.EntityID, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		e.Seq = seq
	}
	return e.ID, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context) ([]models.OutboxEntry, error) {
	return r.list(ctx, `status = 'pending'`)
}

func (r *SQLiteRepository) Outstanding(ctx context.Context) ([]models.OutboxEntry, error) {
	return r.list(ctx, outstandingFilter)
}

func (r *SQLiteRepository) list(ctx context.Context, where string) ([]models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM outbox WHERE `+where+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox entries: %w", err)
	}
	defer rows.Close()

	var result []models.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.OutboxEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM outbox WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get outbox entry %s: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) MarkStatus(ctx context.Context, id string, to models.OutboxStatus, lastErr string) error {
	from := models.AllowedFrom(to)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing may enter %q", common.ErrInvalidTransition, to)
	}

	placeholders := make([]string, len(from))
	args := []any{string(to), lastErr, lastErr}
	bump := 0
	if to == models.StatusProcessing {
		bump = 1
	}
	args = append(args, bump, id)
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := `UPDATE outbox SET status = ?,
		last_error = CASE WHEN ? = '' THEN last_error ELSE ? END,
		attempts = attempts + ?
		WHERE id = ? AND status IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry %s %s: %w", id, to, err)
	}
	return r.checkAffected(ctx, res, id, to)
}

// checkAffected tells a missing entry apart from one in the wrong state.
func (r *SQLiteRepository) checkAffected(ctx context.Context, res sql.Result, id string, to models.OutboxStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s for entry %s", common.ErrInvalidTransition, cur.Status, to, id)
}

func (r *SQLiteRepository) ScheduleRetry(ctx context.Context, id string, at int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET next_attempt_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to schedule retry for %s: %w", id, err)
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

func (r *SQLiteRepository) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'pending', attempts = 0, next_attempt_at = 0
		WHERE id = ? AND status = 'dead'`, id)
	if err != nil {
		return fmt.Errorf("failed to requeue %s: %w", id, err)
	}
	return r.checkAffected(ctx, res, id, models.StatusPending)
}

func (r *SQLiteRepository) RecoverProcessing(ctx context.Context, reason string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = 'failed', last_error = ? WHERE status = 'processing'`, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to recover processing entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SQLiteRepository) PurgeCompleted(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE status = 'completed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SQLiteRepository) CountOutstanding(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE `+outstandingFilter).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outstanding entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountOutstandingFor(ctx context.Context, key models.EntityKey) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE entity_type = ? AND entity_id = ? AND `+outstandingFilter,
		string(key.Type), key.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count outstanding entries for %s: %w", key, err)
	}
	return n, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox`); err != nil {
		return fmt.Errorf("failed to clear outbox: %w", err)
	}
	return nil
}
