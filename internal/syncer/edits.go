package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/feed-sync/internal/batch"
	"github.com/Kamar-Folarin/feed-sync/internal/config"
	"github.com/Kamar-Folarin/feed-sync/internal/db"
	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/events"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/reader"
)

const defaultFlushLimit = 100

// FlushResult summarises one flush of the edit queue
type FlushResult struct {
	Propagated int `json:"propagated"`
	Remaining  int `json:"remaining"`
	Failed     int `json:"failed"`
	Superseded int `json:"superseded"`
}

// EditQueue records local article mutations durably and propagates them
// to the reader service in batches
type EditQueue struct {
	remote  Remote
	store   db.Store
	events  events.Publisher
	config  config.EditConfig
	batches config.BatchConfig
	logger  *logrus.Logger
	now     func() time.Time
	flushMu sync.Mutex
}

// NewEditQueue creates a new edit queue
func NewEditQueue(remote Remote, store db.Store, pub events.Publisher, cfg *config.SyncConfig, logger *logrus.Logger) *EditQueue {
	if pub == nil {
		pub = events.Discard
	}
	batches := cfg.BatchConfig
	// retries are scheduled through next_attempt_at, not inside a flush
	batches.MaxRetries = 0
	return &EditQueue{
		remote:  remote,
		store:   store,
		events:  pub,
		config:  cfg.Edits,
		batches: batches,
		logger:  logger,
		now:     time.Now,
	}
}

// Enqueue applies action to the local article, when known, and queues it
// for propagation
func (q *EditQueue) Enqueue(ctx context.Context, itemID string, action models.EditAction, tag string) (*models.EditQueueEntry, error) {
	itemID = strings.TrimSpace(itemID)
	tag = strings.TrimSpace(tag)

	if itemID == "" {
		return nil, apperrors.NewValidationError("item id cannot be empty", nil)
	}
	if !action.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown edit action: %q", action), nil)
	}
	if action.IsTagAction() && tag == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("action %s requires a tag", action), nil)
	}
	if !action.IsTagAction() {
		tag = ""
	}

	now := q.now().UTC()
	entry := &models.EditQueueEntry{
		ItemID:        itemID,
		Action:        action,
		Tag:           tag,
		EnqueuedAt:    now,
		NextAttemptAt: now,
		Status:        models.EditPending,
	}

	err := q.store.WithTransaction(ctx, func(ctx context.Context) error {
		article, err := q.store.GetArticleByExternalID(ctx, itemID)
		if err != nil {
			return err
		}
		if article != nil {
			entry.ApplyTo(article)
			if _, err := q.store.SaveArticle(ctx, article); err != nil {
				return err
			}
		}
		return q.store.EnqueueEdit(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue edit: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"item_id": itemID,
		"action":  action,
		"tag":     tag,
	}).Debug("Queued local edit")
	return entry, nil
}

// Flush propagates due entries. Only the latest entry of each item and
// action family is sent; older ones are consumed. Entries sharing an
// action and tag go out together in edit-tag calls. A quota or credential
// failure ends the flush and leaves the remaining entries untouched.
func (q *EditQueue) Flush(ctx context.Context) (*FlushResult, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	if q.config.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.FlushTimeout)
		defer cancel()
	}

	entries, skipped, err := q.load(ctx)
	if err != nil {
		return nil, err
	}

	now := q.now().UTC()
	winners, superseded := coalesce(entries)

	result := &FlushResult{Remaining: skipped}
	if len(superseded) > 0 {
		if err := q.store.DeleteEdits(ctx, superseded); err != nil {
			return nil, fmt.Errorf("failed to consume superseded edits: %w", err)
		}
		result.Superseded = len(superseded)
	}

	var groups [][]*models.EditQueueEntry
	index := make(map[string]int)
	for _, e := range winners {
		if e.Status != models.EditPending {
			continue
		}
		if e.NextAttemptAt.After(now) {
			result.Remaining++
			continue
		}
		key := string(e.Action) + "|" + e.Tag
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}

	var stopErr error
	for _, group := range groups {
		if stopErr != nil || ctx.Err() != nil {
			result.Remaining += len(group)
			continue
		}
		if err := q.dispatch(ctx, group, now, result); err != nil && isFlushFatal(err) {
			stopErr = err
		}
	}

	logger := q.logger.WithFields(logrus.Fields{
		"propagated": result.Propagated,
		"remaining":  result.Remaining,
		"failed":     result.Failed,
		"superseded": result.Superseded,
	})
	if stopErr != nil {
		logger.WithError(stopErr).Warn("Edit flush stopped early")
		return result, stopErr
	}
	if result.Propagated > 0 || result.Failed > 0 {
		logger.Info("Flushed local edits")
	}
	return result, nil
}

// load returns the pending entries of one flush merged, in enqueue order,
// with the standing entries of their families, plus the number of pending
// entries left beyond the flush limit. Standing entries never take a
// pending entry's slot.
func (q *EditQueue) load(ctx context.Context) ([]*models.EditQueueEntry, int, error) {
	limit := q.config.FlushLimit
	if limit <= 0 {
		limit = defaultFlushLimit
	}

	pending, err := q.store.ListEdits(ctx, []models.EditStatus{models.EditPending}, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load queued edits: %w", err)
	}
	if len(pending) == 0 {
		return nil, 0, nil
	}

	skipped := 0
	if len(pending) >= limit {
		total, err := q.store.CountEdits(ctx, []models.EditStatus{models.EditPending})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count queued edits: %w", err)
		}
		skipped = max(total-len(pending), 0)
	}

	standing, err := q.store.ListEdits(ctx, []models.EditStatus{models.EditFailed}, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load standing edits: %w", err)
	}

	families := make(map[string]bool, len(pending))
	for _, e := range pending {
		families[e.Family()] = true
	}
	entries := pending
	for _, e := range standing {
		if families[e.Family()] {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, skipped, nil
}

// dispatch sends one action group through the batch processor and records
// the outcome of every entry. Entries neither propagated nor standing
// count as remaining.
func (q *EditQueue) dispatch(ctx context.Context, group []*models.EditQueueEntry, now time.Time, result *FlushResult) error {
	add, remove := editTagArgs(group[0])

	var mu sync.Mutex
	propagated, standing := 0, 0

	processor := batch.NewProcessor[*models.EditQueueEntry](&q.batches)
	processor.ShouldRetry = apperrors.IsTransient

	err := processor.ProcessItems(ctx, group,
		func(ctx context.Context, entries []*models.EditQueueEntry) error {
			ids := make([]string, 0, len(entries))
			editIDs := make([]int64, 0, len(entries))
			for _, e := range entries {
				ids = append(ids, e.ItemID)
				editIDs = append(editIDs, e.ID)
			}
			if err := q.remote.EditTag(ctx, add, remove, ids); err != nil {
				return err
			}
			if err := q.store.DeleteEdits(ctx, editIDs); err != nil {
				q.logger.WithError(err).Warn("Failed to consume propagated edits; they will be sent again")
			}

			mu.Lock()
			propagated += len(entries)
			mu.Unlock()
			return nil
		},
		func(entries []*models.EditQueueEntry, err error) {
			if isFlushFatal(err) || ctx.Err() != nil {
				return
			}
			for _, e := range entries {
				if q.recordFailure(ctx, e, err, now) {
					mu.Lock()
					standing++
					mu.Unlock()
				}
			}
		},
		isFlushFatal,
	)

	mu.Lock()
	defer mu.Unlock()
	result.Propagated += propagated
	result.Failed += standing
	result.Remaining += len(group) - propagated - standing
	return err
}

// recordFailure schedules the next attempt of e, or marks it as a standing
// error once its attempts are exhausted. It reports whether e became standing.
func (q *EditQueue) recordFailure(ctx context.Context, e *models.EditQueueEntry, cause error, now time.Time) bool {
	e.Attempts++
	e.LastError = cause.Error()

	standing := q.config.MaxAttempts > 0 && e.Attempts >= q.config.MaxAttempts
	if standing {
		e.Status = models.EditFailed
	} else {
		e.NextAttemptAt = now.Add(q.retryDelay(e.Attempts))
	}

	if err := q.store.UpdateEdit(context.WithoutCancel(ctx), e); err != nil {
		q.logger.WithError(err).WithField("edit_id", e.ID).Error("Failed to record edit failure")
	}

	if standing {
		q.logger.WithError(cause).WithFields(logrus.Fields{
			"edit_id":  e.ID,
			"item_id":  e.ItemID,
			"action":   e.Action,
			"attempts": e.Attempts,
		}).Warn("Edit could not be propagated and needs attention")
		q.events.Publish(events.Event{
			Type:     events.EditStandingError,
			Severity: events.SeverityWarning,
			Time:     now,
			Message:  fmt.Sprintf("Edit %s on item %s failed %d times", e.Action, e.ItemID, e.Attempts),
			Fields: map[string]interface{}{
				"edit_id": e.ID,
				"item_id": e.ItemID,
				"action":  string(e.Action),
				"error":   e.LastError,
			},
		})
	}
	return standing
}

// retryDelay returns the exponential delay before attempt+1
func (q *EditQueue) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.config.InitialBackoff
	b.MaxInterval = q.config.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// List returns queued entries in the given statuses, all when empty
func (q *EditQueue) List(ctx context.Context, statuses []models.EditStatus, limit int) ([]*models.EditQueueEntry, error) {
	entries, err := q.store.ListEdits(ctx, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}
	return entries, nil
}

// Pending returns entries still waiting to be propagated
func (q *EditQueue) Pending(ctx context.Context, limit int) ([]*models.EditQueueEntry, error) {
	return q.List(ctx, []models.EditStatus{models.EditPending}, limit)
}

// Standing returns entries that exhausted their attempts
func (q *EditQueue) Standing(ctx context.Context, limit int) ([]*models.EditQueueEntry, error) {
	return q.List(ctx, []models.EditStatus{models.EditFailed}, limit)
}

// Abandon gives up on propagating an entry. The local mutation is kept.
func (q *EditQueue) Abandon(ctx context.Context, id int64) (*models.EditQueueEntry, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	e, err := q.store.GetEdit(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == models.EditAbandoned {
		return e, nil
	}
	e.Status = models.EditAbandoned
	if err := q.store.UpdateEdit(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Retry makes an entry due immediately and resets its attempt counter
func (q *EditQueue) Retry(ctx context.Context, id int64) (*models.EditQueueEntry, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	e, err := q.store.GetEdit(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Status = models.EditPending
	e.Attempts = 0
	e.LastError = ""
	e.NextAttemptAt = q.now().UTC()
	if err := q.store.UpdateEdit(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RunPeriodic flushes the queue every FlushInterval until ctx is done
func (q *EditQueue) RunPeriodic(ctx context.Context) error {
	if q.config.FlushInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	q.logger.WithField("interval", q.config.FlushInterval).Info("Edit flusher started")
	ticker := time.NewTicker(q.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Edit flusher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := q.Flush(ctx); err != nil && ctx.Err() == nil {
				q.logger.WithError(err).Warn("Periodic edit flush failed")
			}
		}
	}
}

// coalesce keeps the newest entry of every family. Entries are expected in
// enqueue order; the ids of older entries are returned for deletion.
func coalesce(entries []*models.EditQueueEntry) ([]*models.EditQueueEntry, []int64) {
	latest := make(map[string]int, len(entries))
	var order []string
	for i, e := range entries {
		family := e.Family()
		if _, ok := latest[family]; !ok {
			order = append(order, family)
		}
		latest[family] = i
	}

	winners := make([]*models.EditQueueEntry, 0, len(order))
	keep := make(map[int]bool, len(order))
	for _, family := range order {
		i := latest[family]
		keep[i] = true
		winners = append(winners, entries[i])
	}

	var superseded []int64
	for i, e := range entries {
		if !keep[i] {
			superseded = append(superseded, e.ID)
		}
	}
	return winners, superseded
}

func editTagArgs(e *models.EditQueueEntry) (add, remove string) {
	switch e.Action {
	case models.ActionMarkRead:
		return reader.StateRead, ""
	case models.ActionMarkUnread:
		return "", reader.StateRead
	case models.ActionStar:
		return reader.StateStarred, ""
	case models.ActionUnstar:
		return "", reader.StateStarred
	case models.ActionTagAdd:
		return reader.LabelStream(e.Tag), ""
	case models.ActionTagRemove:
		return "", reader.LabelStream(e.Tag)
	}
	return "", ""
}

func isFlushFatal(err error) bool {
	return apperrors.IsQuotaExceeded(err) || apperrors.IsUnauthorized(err)
}
