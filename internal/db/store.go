package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrRunTerminal is returned when updating a run that already completed or failed
var ErrRunTerminal = errors.New("sync run is already in a terminal state")

// Store defines the interface for database operations
type Store interface {
	// Usage operations
	GetUsage(ctx context.Context, service, day string) (*models.UsageRecord, error)
	SaveUsage(ctx context.Context, rec *models.UsageRecord) error
	ListUsage(ctx context.Context, service string, limit int) ([]*models.UsageRecord, error)

	// Run operations
	CreateRun(ctx context.Context, run *models.SyncRun) error
	UpdateRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, id string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error)
	ActiveRun(ctx context.Context) (*models.SyncRun, error)
	LastSuccessfulRun(ctx context.Context) (*models.SyncRun, error)
	FailActiveRuns(ctx context.Context, message string) (int, error)

	// Feed operations
	UpsertFeeds(ctx context.Context, feeds []*models.Feed) error
	ListFeeds(ctx context.Context) ([]*models.Feed, error)

	// Article operations
	GetArticleByExternalID(ctx context.Context, externalID string) (*models.Article, error)
	SaveArticle(ctx context.Context, article *models.Article) (bool, error)
	EnsureTags(ctx context.Context, names []string) (int, error)
	SidebarCounts(ctx context.Context) ([]models.FeedCount, []models.TagCount, error)
	DeleteArticlesOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Edit queue operations
	EnqueueEdit(ctx context.Context, entry *models.EditQueueEntry) error
	GetEdit(ctx context.Context, id int64) (*models.EditQueueEntry, error)
	ListEdits(ctx context.Context, statuses []models.EditStatus, limit int) ([]*models.EditQueueEntry, error)
	CountEdits(ctx context.Context, statuses []models.EditStatus) (int, error)
	PendingEditsFor(ctx context.Context, itemID string) ([]*models.EditQueueEntry, error)
	UpdateEdit(ctx context.Context, entry *models.EditQueueEntry) error
	DeleteEdits(ctx context.Context, ids []int64) error

	// WithTransaction runs fn in a transaction carried by the context
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	Close() error
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database and verifies the connection
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded migrations
func (s *PostgresStore) Migrate() error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping verifies the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
