// Package syncer pulls subscriptions and articles from the reader service
// into the local store, tracks each run durably and pushes local edits back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/feed-sync/internal/config"
	"github.com/Kamar-Folarin/feed-sync/internal/db"
	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/events"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/reader"
)

const (
	maxProgress     = 99.0
	persistTimeout  = 10 * time.Second
	interruptedRun  = "Sync was interrupted before it finished"
	shutdownMessage = "Sync was interrupted by a shutdown"
)

// Orchestrator runs one synchronization pass at a time
type Orchestrator struct {
	remote     Remote
	store      db.Store
	status     *StatusManager
	reconciler *Reconciler
	events     events.Publisher
	config     *config.SyncConfig
	logger     *logrus.Logger
	now        func() time.Time

	mu       sync.Mutex
	activeID string
	wg       sync.WaitGroup
	baseCtx  context.Context
	stop     context.CancelFunc
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	remote Remote,
	store db.Store,
	pub events.Publisher,
	cfg *config.SyncConfig,
	logger *logrus.Logger,
) *Orchestrator {
	if pub == nil {
		pub = events.Discard
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		remote:     remote,
		store:      store,
		status:     NewStatusManager(store),
		reconciler: NewReconciler(store, logger),
		events:     pub,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
		baseCtx:    baseCtx,
		stop:       stop,
	}
}

// Recover fails runs left pending or running by a process that died.
// Call it once at startup, before the first Trigger.
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.store.FailActiveRuns(ctx, interruptedRun)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if n > 0 {
		o.logger.WithField("runs", n).Warn("Marked interrupted sync runs as failed")
	}
	return nil
}

// Trigger starts a new run in the background and returns it in pending
// state. It returns a SyncInProgressError carrying the active run id when
// a run is already pending or running here or in another instance.
func (o *Orchestrator) Trigger(ctx context.Context) (*models.SyncRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.activeID != "" {
		return nil, apperrors.NewSyncInProgressError(o.activeID)
	}
	if err := o.baseCtx.Err(); err != nil {
		return nil, apperrors.NewInternalError("orchestrator is shutting down", err)
	}

	now := o.now().UTC()
	run := &models.SyncRun{
		ID:        uuid.NewString(),
		Status:    models.RunPending,
		Message:   "Starting sync",
		StartedAt: now,
	}
	if err := o.status.Create(ctx, run); err != nil {
		return nil, err
	}

	o.activeID = run.ID
	o.wg.Add(1)
	go o.execute(run.Clone())

	return run, nil
}

// GetRun returns the persisted state of a run
func (o *Orchestrator) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	return o.status.Get(ctx, id)
}

// ListRuns returns the most recent runs, newest first
func (o *Orchestrator) ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	return o.status.List(ctx, limit)
}

// LastSuccess returns the most recent completed run
func (o *Orchestrator) LastSuccess(ctx context.Context) (*models.SyncRun, error) {
	return o.status.LastSuccess(ctx)
}

// Sidebar computes the current unread projection from the store
func (o *Orchestrator) Sidebar(ctx context.Context) (*models.Sidebar, error) {
	return o.buildSidebar(ctx)
}

// Wait blocks until the background run, if any, has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown interrupts the active run and waits for it to persist its
// final state
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) execute(run *models.SyncRun) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		o.activeID = ""
		o.mu.Unlock()
	}()

	logger := o.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"action": "sync",
	})
	logger.Info("Starting sync run")

	ctx, cancel := context.WithTimeout(o.baseCtx, o.config.RunTimeout)
	defer cancel()

	err := o.sync(ctx, run, logger)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	o.finish(ctx, run, err, logger)
}

func (o *Orchestrator) sync(ctx context.Context, run *models.SyncRun, logger *logrus.Entry) error {
	run.Status = models.RunRunning
	run.Message = "Fetching subscriptions"
	o.save(ctx, run, logger)
	o.publish(events.RunStarted, events.SeverityInfo, run.ID, "Sync run started", nil)

	subs, err := o.remote.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	tags, err := o.remote.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	counts, err := o.remote.UnreadCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get unread counts: %w", err)
	}

	feeds, folders, tagNames := catalog(subs, tags)
	if err := o.store.UpsertFeeds(ctx, feeds); err != nil {
		return o.reconciler.classify(ctx, "feeds", err)
	}
	created, err := o.store.EnsureTags(ctx, tagNames)
	if err != nil {
		return o.reconciler.classify(ctx, "tags", err)
	}
	run.NewTags += created

	since, err := o.since(ctx)
	if err != nil {
		return o.reconciler.classify(ctx, "last run", err)
	}

	run.TotalItems = estimateTotal(feeds, counts, o.config.MaxItemsPerFeed)
	zero := 0.0
	run.Progress = &zero
	run.Message = fmt.Sprintf("Syncing %d feeds", len(feeds))
	o.save(ctx, run, logger)

	logger.WithFields(logrus.Fields{
		"feeds":       len(feeds),
		"total_items": run.TotalItems,
		"since":       since,
	}).Info("Enumerated subscriptions")

	for i, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return err
		}

		feedLogger := logger.WithField("feed", feed.ID)
		if err := o.syncFeed(ctx, run, feed, folders, since, feedLogger); err != nil {
			if apperrors.IsRunFatal(err) || ctx.Err() != nil {
				return err
			}
			run.FailedFeeds++
			feedLogger.WithError(err).Warn("Feed sync failed, continuing with next feed")
			o.publish(events.FeedFailed, events.SeverityWarning, run.ID, "Failed to sync feed", map[string]interface{}{
				"feed_id": feed.ID,
				"error":   err.Error(),
			})
		}

		run.Message = fmt.Sprintf("Synced %d of %d feeds", i+1, len(feeds))
		o.save(ctx, run, logger)
	}

	sidebar, err := o.buildSidebar(ctx)
	if err != nil {
		return o.reconciler.classify(ctx, "sidebar", err)
	}
	run.Sidebar = sidebar

	o.prune(ctx, run, logger)
	return nil
}

func (o *Orchestrator) syncFeed(
	ctx context.Context,
	run *models.SyncRun,
	feed *models.Feed,
	folders FolderSet,
	since time.Time,
	logger *logrus.Entry,
) error {
	continuation := ""
	seen := 0

	for page := 0; page < o.maxPages(); page++ {
		p, err := o.remote.StreamContents(ctx, feed.ID, continuation, o.config.PageSize, since)
		if err != nil {
			return err
		}

		for i := range p.Items {
			item := &p.Items[i]
			out, err := o.reconciler.Reconcile(ctx, item, folders)
			switch {
			case apperrors.IsMalformed(err):
				run.SkippedItems++
				logger.WithError(err).Warn("Skipping malformed item")
				o.publish(events.ItemMalformed, events.SeverityWarning, run.ID, "Skipped malformed item", map[string]interface{}{
					"feed_id": feed.ID,
					"item_id": item.ID,
					"error":   err.Error(),
				})
			case err != nil:
				return err
			default:
				switch out.Kind {
				case OutcomeInserted:
					run.NewArticles++
				case OutcomeUpdated:
					run.UpdatedArticles++
				}
				run.NewTags += out.NewTags
			}

			run.ProcessedItems++
			seen++
			if o.config.MaxItemsPerFeed > 0 && seen >= o.config.MaxItemsPerFeed {
				break
			}
		}

		o.advance(run)
		o.save(ctx, run, logger)

		if p.Continuation == "" || (o.config.MaxItemsPerFeed > 0 && seen >= o.config.MaxItemsPerFeed) {
			return nil
		}
		continuation = p.Continuation

		if err := o.yield(ctx); err != nil {
			return err
		}
	}
	return nil
}

// advance recomputes progress; it never decreases and stays below 100
// until the run completes
func (o *Orchestrator) advance(run *models.SyncRun) {
	if run.ProcessedItems > run.TotalItems {
		run.TotalItems = run.ProcessedItems
	}
	pct := 0.0
	if run.TotalItems > 0 {
		pct = float64(run.ProcessedItems) / float64(run.TotalItems) * 100
	}
	pct = math.Min(pct, maxProgress)
	if run.Progress != nil && *run.Progress > pct {
		pct = *run.Progress
	}
	pct = math.Round(pct*10) / 10
	run.Progress = &pct
}

func (o *Orchestrator) finish(ctx context.Context, run *models.SyncRun, err error, logger *logrus.Entry) {
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	finished := o.now().UTC()
	run.FinishedAt = &finished

	if err == nil {
		done := 100.0
		run.Status = models.RunCompleted
		run.Progress = &done
		run.Message = fmt.Sprintf("Sync completed: %d new, %d updated, %d failed feeds",
			run.NewArticles, run.UpdatedArticles, run.FailedFeeds)
		logger.WithFields(logrus.Fields{
			"new_articles":     run.NewArticles,
			"updated_articles": run.UpdatedArticles,
			"failed_feeds":     run.FailedFeeds,
			"skipped_items":    run.SkippedItems,
			"duration":         finished.Sub(run.StartedAt),
		}).Info("Sync run completed")
		o.publish(events.RunCompleted, events.SeverityInfo, run.ID, run.Message, map[string]interface{}{
			"new_articles":     run.NewArticles,
			"updated_articles": run.UpdatedArticles,
			"failed_feeds":     run.FailedFeeds,
		})
	} else {
		kind, message, retryable := o.describeFailure(ctx, err)
		run.Status = models.RunFailed
		run.ErrorKind = kind
		run.Message = message
		run.Error = err.Error()
		run.Retryable = retryable
		logger.WithError(err).WithField("error_kind", kind).Error("Sync run failed")
		o.publish(events.RunFailed, events.SeverityError, run.ID, message, map[string]interface{}{
			"error_kind": string(kind),
			"error":      err.Error(),
			"retryable":  retryable,
		})
	}

	if err := o.status.Update(persistCtx, run); err != nil {
		if errors.Is(err, db.ErrRunTerminal) {
			logger.WithError(err).Warn("Run was already finalized elsewhere")
			return
		}
		logger.WithError(err).Error("Failed to persist final run state")
	}
}

// describeFailure maps a run-ending error to its kind and a message fit
// for end users
func (o *Orchestrator) describeFailure(ctx context.Context, err error) (models.ErrorKind, string, bool) {
	var quotaErr *apperrors.QuotaExceededError
	switch {
	case apperrors.IsQuotaExceeded(err):
		msg := "The daily API quota is exhausted"
		if errors.As(err, &quotaErr) && quotaErr.ResetAfter > 0 {
			msg = fmt.Sprintf("%s; it resets in %s", msg, quotaErr.ResetAfter.Round(time.Minute))
		}
		return models.KindQuotaExceeded, msg, true
	case apperrors.IsUnauthorized(err):
		return models.KindAuthRejected, "The reader service rejected the credentials; reconnect the account", false
	case apperrors.IsStoreUnavailable(err):
		return models.KindStoreUnavailable, "The local database is unavailable", true
	case errors.Is(ctx.Err(), context.DeadlineExceeded), apperrors.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return models.KindTimeout, fmt.Sprintf("Sync did not finish within %s", o.config.RunTimeout), true
	case o.baseCtx.Err() != nil:
		return models.KindInternal, shutdownMessage, true
	default:
		return models.KindInternal, "Sync failed because of an unexpected error", apperrors.IsRetryable(err)
	}
}

func (o *Orchestrator) since(ctx context.Context) (time.Time, error) {
	if !o.config.Incremental {
		return time.Time{}, nil
	}
	last, err := o.store.LastSuccessfulRun(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if last == nil {
		return time.Time{}, nil
	}
	return last.StartedAt, nil
}

func (o *Orchestrator) buildSidebar(ctx context.Context) (*models.Sidebar, error) {
	feeds, tags, err := o.store.SidebarCounts(ctx)
	if err != nil {
		return nil, err
	}
	sidebar := &models.Sidebar{
		Feeds:       feeds,
		Tags:        tags,
		GeneratedAt: o.now().UTC(),
	}
	for _, f := range feeds {
		sidebar.TotalUnread += f.Unread
	}
	return sidebar, nil
}

func (o *Orchestrator) prune(ctx context.Context, run *models.SyncRun, logger *logrus.Entry) {
	if o.config.RetentionDays <= 0 {
		return
	}
	cutoff := o.now().UTC().AddDate(0, 0, -o.config.RetentionDays)
	n, err := o.store.DeleteArticlesOlderThan(ctx, cutoff)
	if err != nil {
		logger.WithError(err).Warn("Failed to prune old articles")
		return
	}
	run.DeletedArticles = n
	if n > 0 {
		logger.WithFields(logrus.Fields{
			"deleted": n,
			"cutoff":  cutoff,
		}).Info("Pruned old articles")
	}
}

// save persists intermediate state; failures are logged and the run
// carries on since the final state is written separately
func (o *Orchestrator) save(ctx context.Context, run *models.SyncRun, logger *logrus.Entry) {
	if err := o.status.Update(ctx, run); err != nil {
		logger.WithError(err).Warn("Failed to persist run progress")
	}
}

func (o *Orchestrator) yield(ctx context.Context) error {
	if o.config.YieldDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.config.YieldDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) maxPages() int {
	if o.config.MaxPagesPerFeed <= 0 {
		return 1
	}
	return o.config.MaxPagesPerFeed
}

func (o *Orchestrator) publish(eventType, severity, runID, message string, fields map[string]interface{}) {
	o.events.Publish(events.Event{
		Type:     eventType,
		Severity: severity,
		Time:     o.now().UTC(),
		RunID:    runID,
		Message:  message,
		Fields:   fields,
	})
}

// catalog converts the remote subscription and tag lists into feeds sorted
// by id, the set of folder names and the names of plain tags
func catalog(subs []reader.Subscription, tags []reader.Tag) ([]*models.Feed, FolderSet, []string) {
	folders := NewFolderSet()
	feeds := make([]*models.Feed, 0, len(subs))
	for _, s := range subs {
		feed := &models.Feed{
			ID:      s.ID,
			Title:   s.Title,
			URL:     s.URL,
			SiteURL: s.HTMLURL,
			Folders: []string{},
		}
		for _, c := range s.Categories {
			name, ok := reader.LabelName(c.ID)
			if !ok {
				name = c.Label
			}
			if name == "" {
				continue
			}
			folders[name] = struct{}{}
			feed.Folders = append(feed.Folders, name)
		}
		sort.Strings(feed.Folders)
		feeds = append(feeds, feed)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })

	var tagNames []string
	for _, t := range tags {
		name, ok := reader.LabelName(t.ID)
		if !ok {
			continue
		}
		if t.Type == "folder" {
			folders[name] = struct{}{}
			continue
		}
		if folders.Contains(name) {
			continue
		}
		tagNames = append(tagNames, name)
	}
	return feeds, folders, uniqueSorted(tagNames)
}

// estimateTotal sums the unread count of each feed, bounded by the per-feed
// item cap and counting at least one item per feed
func estimateTotal(feeds []*models.Feed, counts []reader.UnreadCount, perFeed int) int {
	unread := make(map[string]int64, len(counts))
	for _, c := range counts {
		unread[c.ID] = c.Count
	}

	total := 0
	for _, f := range feeds {
		n := unread[f.ID]
		if perFeed > 0 && n > int64(perFeed) {
			n = int64(perFeed)
		}
		if n < 1 {
			n = 1
		}
		total += int(n)
	}
	return total
}
