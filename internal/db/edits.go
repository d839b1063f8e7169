package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

const editColumns = `id, item_id, action, tag, enqueued_at, attempts, last_error, next_attempt_at, status`

// EnqueueEdit persists a new entry and sets its id
func (s *PostgresStore) EnqueueEdit(ctx context.Context, e *models.EditQueueEntry) error {
	if e.Status == "" {
		e.Status = models.EditPending
	}
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &e.ID, `
		INSERT INTO edit_queue (item_id, action, tag, enqueued_at, attempts, last_error, next_attempt_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.ItemID, string(e.Action), e.Tag, e.EnqueuedAt, e.Attempts, e.LastError, e.NextAttemptAt, string(e.Status))
	if err != nil {
		return fmt.Errorf("failed to enqueue edit: %w", err)
	}
	return nil
}

// GetEdit returns the entry with id
func (s *PostgresStore) GetEdit(ctx context.Context, id int64) (*models.EditQueueEntry, error) {
	var e models.EditQueueEntry
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &e,
		`SELECT `+editColumns+` FROM edit_queue WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("edit %d not found", id), nil)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get edit: %w", err)
	}
	return &e, nil
}

// ListEdits returns entries in the given statuses (all when empty) oldest first
func (s *PostgresStore) ListEdits(ctx context.Context, statuses []models.EditStatus, limit int) ([]*models.EditQueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + editColumns + ` FROM edit_queue`
	args := []interface{}{}
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}
		query += ` WHERE status = ANY($1) ORDER BY id LIMIT $2`
		args = append(args, pq.Array(names), limit)
	} else {
		query += ` ORDER BY id LIMIT $1`
		args = append(args, limit)
	}

	var entries []*models.EditQueueEntry
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}
	return entries, nil
}

// CountEdits returns the number of entries in the given statuses, all when empty
func (s *PostgresStore) CountEdits(ctx context.Context, statuses []models.EditStatus) (int, error) {
	query := `SELECT COUNT(*) FROM edit_queue`
	args := []interface{}{}
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(names))
	}

	var n int
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count edits: %w", err)
	}
	return n, nil
}

// PendingEditsFor returns the unpropagated entries of an item, oldest first
func (s *PostgresStore) PendingEditsFor(ctx context.Context, itemID string) ([]*models.EditQueueEntry, error) {
	var entries []*models.EditQueueEntry
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, `
		SELECT `+editColumns+` FROM edit_queue
		WHERE item_id = $1 AND status IN ('pending', 'failed')
		ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item edits: %w", err)
	}
	return entries, nil
}

// UpdateEdit persists the delivery state of an entry
func (s *PostgresStore) UpdateEdit(ctx context.Context, e *models.EditQueueEntry) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE edit_queue SET
			attempts = $2,
			last_error = $3,
			next_attempt_at = $4,
			status = $5
		WHERE id = $1`,
		e.ID, e.Attempts, e.LastError, e.NextAttemptAt, string(e.Status))
	if err != nil {
		return fmt.Errorf("failed to update edit: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("edit %d not found", e.ID), nil)
	}
	return nil
}

// DeleteEdits consumes propagated or superseded entries
func (s *PostgresStore) DeleteEdits(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM edit_queue WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete edits: %w", err)
	}
	return nil
}
