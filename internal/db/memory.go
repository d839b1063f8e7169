package db

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

type memTxKey struct{}

// MemoryStore is a process-local Store. It enforces the same uniqueness
// rules as the Postgres schema: one usage record per (service, day), one
// article per external id, one active run.
type MemoryStore struct {
	mu   sync.RWMutex
	data memData
}

type memData struct {
	usage       map[string]*models.UsageRecord
	runs        map[string]*models.SyncRun
	feeds       map[string]*models.Feed
	articles    map[string]*models.Article
	tags        map[string]time.Time
	edits       map[int64]*models.EditQueueEntry
	nextArticle int64
	nextEdit    int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memData{
		usage:    make(map[string]*models.UsageRecord),
		runs:     make(map[string]*models.SyncRun),
		feeds:    make(map[string]*models.Feed),
		articles: make(map[string]*models.Article),
		tags:     make(map[string]time.Time),
		edits:    make(map[int64]*models.EditQueueEntry),
	}}
}

func (d memData) clone() memData {
	c := memData{
		usage:       make(map[string]*models.UsageRecord, len(d.usage)),
		runs:        make(map[string]*models.SyncRun, len(d.runs)),
		feeds:       make(map[string]*models.Feed, len(d.feeds)),
		articles:    make(map[string]*models.Article, len(d.articles)),
		tags:        make(map[string]time.Time, len(d.tags)),
		edits:       make(map[int64]*models.EditQueueEntry, len(d.edits)),
		nextArticle: d.nextArticle,
		nextEdit:    d.nextEdit,
	}
	for k, v := range d.usage {
		c.usage[k] = v.Clone()
	}
	for k, v := range d.runs {
		c.runs[k] = v.Clone()
	}
	for k, v := range d.feeds {
		c.feeds[k] = cloneFeed(v)
	}
	for k, v := range d.articles {
		c.articles[k] = v.Clone()
	}
	for k, v := range d.tags {
		c.tags[k] = v
	}
	for k, v := range d.edits {
		e := *v
		c.edits[k] = &e
	}
	return c
}

// WithTransaction holds the store lock for the duration of fn and restores
// the previous state when fn fails. Calls made with the context passed to
// fn run under that lock.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) rlock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// Usage

func usageKey(service, day string) string {
	return service + "/" + day
}

func (s *MemoryStore) GetUsage(ctx context.Context, service, day string) (*models.UsageRecord, error) {
	defer s.rlock(ctx)()
	return s.data.usage[usageKey(service, day)].Clone(), nil
}

func (s *MemoryStore) SaveUsage(ctx context.Context, rec *models.UsageRecord) error {
	if rec == nil {
		return fmt.Errorf("usage record cannot be nil")
	}
	defer s.lock(ctx)()
	s.data.usage[usageKey(rec.Service, rec.Day)] = rec.Clone()
	return nil
}

func (s *MemoryStore) ListUsage(ctx context.Context, service string, limit int) ([]*models.UsageRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	defer s.rlock(ctx)()

	var records []*models.UsageRecord
	for _, rec := range s.data.usage {
		if rec.Service == service {
			records = append(records, rec.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Day > records[j].Day })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Runs

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.SyncRun) error {
	defer s.lock(ctx)()

	if run.Status.IsActive() {
		if active := s.activeRunLocked(); active != nil {
			return apperrors.NewSyncInProgressError(active.ID)
		}
	}
	if _, exists := s.data.runs[run.ID]; exists {
		return fmt.Errorf("failed to create sync run: duplicate id %s", run.ID)
	}
	s.data.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	defer s.lock(ctx)()

	stored, ok := s.data.runs[run.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("sync run %s not found", run.ID), nil)
	}
	if stored.Status.IsTerminal() {
		return ErrRunTerminal
	}
	s.data.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	defer s.rlock(ctx)()

	run, ok := s.data.runs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sync run %s not found", id), nil)
	}
	return run.Clone(), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	defer s.rlock(ctx)()

	runs := s.sortedRunsLocked()
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) ActiveRun(ctx context.Context) (*models.SyncRun, error) {
	defer s.rlock(ctx)()
	return s.activeRunLocked().Clone(), nil
}

func (s *MemoryStore) LastSuccessfulRun(ctx context.Context) (*models.SyncRun, error) {
	defer s.rlock(ctx)()

	for _, run := range s.sortedRunsLocked() {
		if run.Status == models.RunCompleted {
			return run, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FailActiveRuns(ctx context.Context, message string) (int, error) {
	defer s.lock(ctx)()

	now := time.Now().UTC()
	n := 0
	for _, run := range s.data.runs {
		if !run.Status.IsActive() {
			continue
		}
		run.Status = models.RunFailed
		run.Message = message
		run.Error = "interrupted"
		run.ErrorKind = models.KindInternal
		run.Retryable = true
		run.FinishedAt = &now
		run.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *MemoryStore) activeRunLocked() *models.SyncRun {
	for _, run := range s.data.runs {
		if run.Status.IsActive() {
			return run
		}
	}
	return nil
}

// sortedRunsLocked returns copies of every run, newest first
func (s *MemoryStore) sortedRunsLocked() []*models.SyncRun {
	runs := make([]*models.SyncRun, 0, len(s.data.runs))
	for _, run := range s.data.runs {
		runs = append(runs, run.Clone())
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs
}

// Feeds

func cloneFeed(f *models.Feed) *models.Feed {
	c := *f
	c.Folders = append([]string(nil), f.Folders...)
	return &c
}

func (s *MemoryStore) UpsertFeeds(ctx context.Context, feeds []*models.Feed) error {
	defer s.lock(ctx)()

	now := time.Now().UTC()
	for _, f := range feeds {
		c := cloneFeed(f)
		if existing, ok := s.data.feeds[f.ID]; ok {
			c.CreatedAt = existing.CreatedAt
		} else {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		s.data.feeds[f.ID] = c
	}
	return nil
}

func (s *MemoryStore) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	defer s.rlock(ctx)()

	feeds := make([]*models.Feed, 0, len(s.data.feeds))
	for _, f := range s.data.feeds {
		feeds = append(feeds, cloneFeed(f))
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].ID < feeds[j].ID })
	return feeds, nil
}

// Articles

func (s *MemoryStore) GetArticleByExternalID(ctx context.Context, externalID string) (*models.Article, error) {
	defer s.rlock(ctx)()
	return s.data.articles[externalID].Clone(), nil
}

func (s *MemoryStore) SaveArticle(ctx context.Context, a *models.Article) (bool, error) {
	defer s.lock(ctx)()

	now := time.Now().UTC()
	c := a.Clone()
	existing, ok := s.data.articles[a.ExternalID]
	if ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		s.data.nextArticle++
		c.ID = s.data.nextArticle
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	sort.Strings(c.Tags)
	for _, t := range c.Tags {
		if _, exists := s.data.tags[t]; !exists {
			s.data.tags[t] = now
		}
	}
	s.data.articles[a.ExternalID] = c
	a.ID = c.ID
	return !ok, nil
}

func (s *MemoryStore) EnsureTags(ctx context.Context, names []string) (int, error) {
	defer s.lock(ctx)()

	now := time.Now().UTC()
	created := 0
	for _, name := range names {
		if _, exists := s.data.tags[name]; !exists {
			s.data.tags[name] = now
			created++
		}
	}
	return created, nil
}

func (s *MemoryStore) SidebarCounts(ctx context.Context) ([]models.FeedCount, []models.TagCount, error) {
	defer s.rlock(ctx)()

	unread := make(map[string]int)
	tagged := make(map[string]int)
	for _, a := range s.data.articles {
		if !a.Read {
			unread[a.FeedID]++
		}
		for _, t := range a.Tags {
			tagged[t]++
		}
	}

	feeds := make([]models.FeedCount, 0, len(s.data.feeds))
	for _, f := range s.data.feeds {
		feeds = append(feeds, models.FeedCount{FeedID: f.ID, Title: f.Title, Unread: unread[f.ID]})
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].FeedID < feeds[j].FeedID })

	tags := make([]models.TagCount, 0, len(s.data.tags))
	for name := range s.data.tags {
		tags = append(tags, models.TagCount{Tag: name, Count: tagged[name]})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Tag < tags[j].Tag })

	return feeds, tags, nil
}

func (s *MemoryStore) DeleteArticlesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	defer s.lock(ctx)()

	outstanding := make(map[string]bool)
	for _, e := range s.data.edits {
		if e.Status != models.EditAbandoned {
			outstanding[e.ItemID] = true
		}
	}

	n := 0
	for id, a := range s.data.articles {
		if a.Read && !a.Starred && len(a.Tags) == 0 && a.LastSyncedAt.Before(cutoff) && !outstanding[id] {
			delete(s.data.articles, id)
			n++
		}
	}
	return n, nil
}

// Edits

func (s *MemoryStore) EnqueueEdit(ctx context.Context, e *models.EditQueueEntry) error {
	defer s.lock(ctx)()

	if e.Status == "" {
		e.Status = models.EditPending
	}
	s.data.nextEdit++
	e.ID = s.data.nextEdit
	c := *e
	s.data.edits[e.ID] = &c
	return nil
}

func (s *MemoryStore) GetEdit(ctx context.Context, id int64) (*models.EditQueueEntry, error) {
	defer s.rlock(ctx)()

	e, ok := s.data.edits[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("edit %d not found", id), nil)
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) ListEdits(ctx context.Context, statuses []models.EditStatus, limit int) ([]*models.EditQueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	want := make(map[models.EditStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.filterEdits(ctx, limit, func(e *models.EditQueueEntry) bool {
		return len(want) == 0 || want[e.Status]
	}), nil
}

func (s *MemoryStore) CountEdits(ctx context.Context, statuses []models.EditStatus) (int, error) {
	defer s.rlock(ctx)()

	n := 0
	for _, e := range s.data.edits {
		if len(statuses) == 0 || slices.Contains(statuses, e.Status) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PendingEditsFor(ctx context.Context, itemID string) ([]*models.EditQueueEntry, error) {
	return s.filterEdits(ctx, 0, func(e *models.EditQueueEntry) bool {
		return e.ItemID == itemID && e.Status != models.EditAbandoned
	}), nil
}

func (s *MemoryStore) UpdateEdit(ctx context.Context, e *models.EditQueueEntry) error {
	defer s.lock(ctx)()

	stored, ok := s.data.edits[e.ID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("edit %d not found", e.ID), nil)
	}
	stored.Attempts = e.Attempts
	stored.LastError = e.LastError
	stored.NextAttemptAt = e.NextAttemptAt
	stored.Status = e.Status
	return nil
}

func (s *MemoryStore) DeleteEdits(ctx context.Context, ids []int64) error {
	defer s.lock(ctx)()

	for _, id := range ids {
		delete(s.data.edits, id)
	}
	return nil
}

// filterEdits returns copies of matching entries ordered by id; limit 0 means all
func (s *MemoryStore) filterEdits(ctx context.Context, limit int, match func(*models.EditQueueEntry) bool) []*models.EditQueueEntry {
	defer s.rlock(ctx)()

	var out []*models.EditQueueEntry
	for _, e := range s.data.edits {
		if match(e) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
