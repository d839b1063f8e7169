package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

type usageRow struct {
	Service           string       `db:"service"`
	Day               string       `db:"day"`
	Zone1Used         int64        `db:"zone1_used"`
	Zone1Limit        int64        `db:"zone1_limit"`
	Zone1LocalCalls   int64        `db:"zone1_local_calls"`
	Zone1HeaderSeen   bool         `db:"zone1_header_seen"`
	Zone2Used         int64        `db:"zone2_used"`
	Zone2Limit        int64        `db:"zone2_limit"`
	Zone2LocalCalls   int64        `db:"zone2_local_calls"`
	Zone2HeaderSeen   bool         `db:"zone2_header_seen"`
	ResetAfterSeconds int64        `db:"reset_after_seconds"`
	ResetAt           sql.NullTime `db:"reset_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

const usageColumns = `service, day, zone1_used, zone1_limit, zone1_local_calls, zone1_header_seen,
	zone2_used, zone2_limit, zone2_local_calls, zone2_header_seen, reset_after_seconds, reset_at, updated_at`

func (r *usageRow) toModel() *models.UsageRecord {
	rec := &models.UsageRecord{
		Service: r.Service,
		Day:     r.Day,
		Zone1: models.ZoneUsage{
			Used:       r.Zone1Used,
			Limit:      r.Zone1Limit,
			LocalCalls: r.Zone1LocalCalls,
			HeaderSeen: r.Zone1HeaderSeen,
		},
		Zone2: models.ZoneUsage{
			Used:       r.Zone2Used,
			Limit:      r.Zone2Limit,
			LocalCalls: r.Zone2LocalCalls,
			HeaderSeen: r.Zone2HeaderSeen,
		},
		ResetAfterSeconds: r.ResetAfterSeconds,
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.ResetAt.Valid {
		rec.ResetAt = r.ResetAt.Time.UTC()
	}
	return rec
}

// GetUsage returns the usage record of service for day, or nil when none exists
func (s *PostgresStore) GetUsage(ctx context.Context, service, day string) (*models.UsageRecord, error) {
	var row usageRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row,
		`SELECT `+usageColumns+` FROM usage_records WHERE service = $1 AND day = $2`,
		service, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}
	return row.toModel(), nil
}

// SaveUsage inserts or replaces the record keyed by (service, day)
func (s *PostgresStore) SaveUsage(ctx context.Context, rec *models.UsageRecord) error {
	if rec == nil {
		return fmt.Errorf("usage record cannot be nil")
	}

	var resetAt interface{}
	if !rec.ResetAt.IsZero() {
		resetAt = rec.ResetAt
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (service, day) DO UPDATE SET
			zone1_used = EXCLUDED.zone1_used,
			zone1_limit = EXCLUDED.zone1_limit,
			zone1_local_calls = EXCLUDED.zone1_local_calls,
			zone1_header_seen = EXCLUDED.zone1_header_seen,
			zone2_used = EXCLUDED.zone2_used,
			zone2_limit = EXCLUDED.zone2_limit,
			zone2_local_calls = EXCLUDED.zone2_local_calls,
			zone2_header_seen = EXCLUDED.zone2_header_seen,
			reset_after_seconds = EXCLUDED.reset_after_seconds,
			reset_at = EXCLUDED.reset_at,
			updated_at = EXCLUDED.updated_at`,
		rec.Service, rec.Day,
		rec.Zone1.Used, rec.Zone1.Limit, rec.Zone1.LocalCalls, rec.Zone1.HeaderSeen,
		rec.Zone2.Used, rec.Zone2.Limit, rec.Zone2.LocalCalls, rec.Zone2.HeaderSeen,
		rec.ResetAfterSeconds, resetAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}

// ListUsage returns the most recent records of service, newest day first
func (s *PostgresStore) ListUsage(ctx context.Context, service string, limit int) ([]*models.UsageRecord, error) {
	if limit <= 0 {
		limit = 30
	}

	var rows []usageRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows,
		`SELECT `+usageColumns+` FROM usage_records WHERE service = $1 ORDER BY day DESC LIMIT $2`,
		service, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	records := make([]*models.UsageRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, nil
}
