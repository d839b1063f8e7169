package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

const activeRunIndex = "sync_runs_single_active"

type runRow struct {
	ID         string          `db:"id"`
	Status     string          `db:"status"`
	Progress   sql.NullFloat64 `db:"progress"`
	Message    string          `db:"message"`
	StartedAt  time.Time       `db:"started_at"`
	FinishedAt sql.NullTime    `db:"finished_at"`
	models.Counters
	Error     string    `db:"error"`
	ErrorKind string    `db:"error_kind"`
	Retryable bool      `db:"retryable"`
	Sidebar   []byte    `db:"sidebar"`
	UpdatedAt time.Time `db:"updated_at"`
}

const runColumns = `id, status, progress, message, started_at, finished_at,
	new_articles, updated_articles, deleted_articles, new_tags, failed_feeds,
	skipped_items, processed_items, total_items, error, error_kind, retryable, sidebar, updated_at`

func (r *runRow) toModel() (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:        r.ID,
		Status:    models.RunStatus(r.Status),
		Message:   r.Message,
		StartedAt: r.StartedAt.UTC(),
		Counters:  r.Counters,
		Error:     r.Error,
		ErrorKind: models.ErrorKind(r.ErrorKind),
		Retryable: r.Retryable,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.Progress.Valid {
		p := r.Progress.Float64
		run.Progress = &p
	}
	if r.FinishedAt.Valid {
		f := r.FinishedAt.Time.UTC()
		run.FinishedAt = &f
	}
	if len(r.Sidebar) > 0 {
		var sb models.Sidebar
		if err := json.Unmarshal(r.Sidebar, &sb); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sidebar: %w", err)
		}
		run.Sidebar = &sb
	}
	return run, nil
}

func runArgs(run *models.SyncRun) ([]interface{}, error) {
	var progress, finishedAt, sidebar interface{}
	if run.Progress != nil {
		progress = *run.Progress
	}
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}
	if run.Sidebar != nil {
		data, err := json.Marshal(run.Sidebar)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sidebar: %w", err)
		}
		sidebar = data
	}
	return []interface{}{
		run.ID, string(run.Status), progress, run.Message, run.StartedAt, finishedAt,
		run.NewArticles, run.UpdatedArticles, run.DeletedArticles, run.NewTags, run.FailedFeeds,
		run.SkippedItems, run.ProcessedItems, run.TotalItems,
		run.Error, string(run.ErrorKind), run.Retryable, sidebar, run.UpdatedAt,
	}, nil
}

// CreateRun inserts a new run. It fails with a SyncInProgressError when
// another run is pending or running.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.SyncRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO sync_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == activeRunIndex {
			active, activeErr := s.ActiveRun(ctx)
			if activeErr == nil && active != nil {
				return apperrors.NewSyncInProgressError(active.ID)
			}
			return apperrors.NewSyncInProgressError("")
		}
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// UpdateRun persists the run unless the stored row is already terminal
func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE sync_runs SET
			status = $2, progress = $3, message = $4, started_at = $5, finished_at = $6,
			new_articles = $7, updated_articles = $8, deleted_articles = $9, new_tags = $10,
			failed_feeds = $11, skipped_items = $12, processed_items = $13, total_items = $14,
			error = $15, error_kind = $16, retryable = $17, sidebar = $18, updated_at = $19
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}
	if n == 0 {
		if _, err := s.GetRun(ctx, run.ID); err != nil {
			return err
		}
		return ErrRunTerminal
	}
	return nil
}

// GetRun returns the run with id
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	run, err := s.getRun(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id::text = $1`, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sync run %s not found", id), nil)
	}
	return run, nil
}

// ActiveRun returns the pending or running run, or nil
func (s *PostgresStore) ActiveRun(ctx context.Context) (*models.SyncRun, error) {
	return s.getRun(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE status IN ('pending', 'running') LIMIT 1`)
}

// LastSuccessfulRun returns the most recently started completed run, or nil
func (s *PostgresStore) LastSuccessfulRun(ctx context.Context) (*models.SyncRun, error) {
	return s.getRun(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE status = 'completed' ORDER BY started_at DESC LIMIT 1`)
}

// ListRuns returns the most recent runs, newest first
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	runs := make([]*models.SyncRun, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// FailActiveRuns marks every pending or running run as failed
func (s *PostgresStore) FailActiveRuns(ctx context.Context, message string) (int, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE sync_runs SET
			status = 'failed',
			message = $1,
			error = 'interrupted',
			error_kind = 'internal',
			retryable = TRUE,
			finished_at = NOW(),
			updated_at = NOW()
		WHERE status IN ('pending', 'running')`, message)
	if err != nil {
		return 0, fmt.Errorf("failed to fail active runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) getRun(ctx context.Context, query string, args ...interface{}) (*models.SyncRun, error) {
	var row runRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}
	return row.toModel()
}
