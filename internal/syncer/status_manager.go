package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kamar-Folarin/feed-sync/internal/db"
	"github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

// StatusManager persists run state and keeps a cache of finished runs.
// Active runs are always read from the store so that every instance sees
// the same progress.
type StatusManager struct {
	store db.Store
	mu    sync.RWMutex
	cache map[string]*models.SyncRun
	now   func() time.Time
}

// NewStatusManager creates a new status manager
func NewStatusManager(store db.Store) *StatusManager {
	return &StatusManager{
		store: store,
		cache: make(map[string]*models.SyncRun),
		now:   time.Now,
	}
}

// Create persists a new run
func (m *StatusManager) Create(ctx context.Context, run *models.SyncRun) error {
	if err := validateRun(run); err != nil {
		return err
	}
	run.UpdatedAt = m.now().UTC()
	if err := m.store.CreateRun(ctx, run); err != nil {
		if errors.IsSyncInProgress(err) {
			return err
		}
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// Update persists the current state of a run
func (m *StatusManager) Update(ctx context.Context, run *models.SyncRun) error {
	if err := validateRun(run); err != nil {
		return err
	}
	run.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	if run.Status.IsTerminal() {
		m.mu.Lock()
		m.cache[run.ID] = run.Clone()
		m.mu.Unlock()
	}
	return nil
}

// Get retrieves a run by id
func (m *StatusManager) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	m.mu.RLock()
	if run, exists := m.cache[id]; exists {
		m.mu.RUnlock()
		return run.Clone(), nil
	}
	m.mu.RUnlock()

	run, err := m.store.GetRun(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("sync run not found: %s", id), err)
		}
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}

	if run.Status.IsTerminal() {
		m.mu.Lock()
		m.cache[id] = run.Clone()
		m.mu.Unlock()
	}
	return run, nil
}

// List returns the most recent runs, newest first
func (m *StatusManager) List(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	runs, err := m.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}

// LastSuccess returns the most recent completed run
func (m *StatusManager) LastSuccess(ctx context.Context) (*models.SyncRun, error) {
	run, err := m.store.LastSuccessfulRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last successful run: %w", err)
	}
	if run == nil {
		return nil, errors.NewNotFoundError("no sync run has completed yet", nil)
	}
	return run, nil
}

func validateRun(run *models.SyncRun) error {
	if run == nil {
		return errors.NewValidationError("run cannot be nil", nil)
	}
	if run.ID == "" {
		return errors.NewValidationError("run id cannot be empty", nil)
	}
	return nil
}
