package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_UsageOneRecordPerDay(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rec := models.NewUsageRecord("inoreader", now, 100, 100)
	require.NoError(t, store.SaveUsage(ctx, rec))

	rec.Zone1.Used = 42
	require.NoError(t, store.SaveUsage(ctx, rec))

	require.NoError(t, store.SaveUsage(ctx, models.NewUsageRecord("inoreader", now.Add(24*time.Hour), 100, 100)))

	got, err := store.GetUsage(ctx, "inoreader", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Zone1.Used)

	history, err := store.ListUsage(ctx, "inoreader", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2024-05-02", history[0].Day)

	missing, err := store.GetUsage(ctx, "inoreader", "2023-01-01")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_SingleActiveRun(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &models.SyncRun{ID: "run-1", Status: models.RunPending, StartedAt: time.Now()}
	require.NoError(t, store.CreateRun(ctx, first))

	err := store.CreateRun(ctx, &models.SyncRun{ID: "run-2", Status: models.RunPending, StartedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, apperrors.IsSyncInProgress(err))

	var inProgress *apperrors.SyncInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, "run-1", inProgress.RunID)

	first.Status = models.RunCompleted
	require.NoError(t, store.UpdateRun(ctx, first))
	require.NoError(t, store.CreateRun(ctx, &models.SyncRun{ID: "run-2", Status: models.RunPending, StartedAt: time.Now()}))
}

func TestMemoryStore_TerminalRunIsImmutable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	run := &models.SyncRun{ID: "run-1", Status: models.RunRunning, StartedAt: time.Now()}
	require.NoError(t, store.CreateRun(ctx, run))

	run.Status = models.RunFailed
	run.Error = "boom"
	require.NoError(t, store.UpdateRun(ctx, run))

	run.Status = models.RunCompleted
	assert.ErrorIs(t, store.UpdateRun(ctx, run), ErrRunTerminal)

	stored, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, stored.Status)

	_, err = store.GetRun(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_FailActiveRuns(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, &models.SyncRun{ID: "run-1", Status: models.RunRunning, StartedAt: time.Now()}))

	n, err := store.FailActiveRuns(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)

	active, err := store.ActiveRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestMemoryStore_LastSuccessfulRun(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []models.RunStatus{models.RunCompleted, models.RunCompleted, models.RunFailed} {
		run := &models.SyncRun{ID: string(rune('a' + i)), Status: status, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.CreateRun(ctx, run))
	}

	last, err := store.LastSuccessfulRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.ID)

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
}

func TestMemoryStore_ArticleUpsertByExternalID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := &models.Article{ExternalID: "item-1", FeedID: "feed/a", Title: "v1", Tags: []string{"b", "a"}}
	inserted, err := store.SaveArticle(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)
	firstID := a.ID

	a2 := &models.Article{ExternalID: "item-1", FeedID: "feed/a", Title: "v2"}
	inserted, err = store.SaveArticle(ctx, a2)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, firstID, a2.ID)

	got, err := store.GetArticleByExternalID(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Empty(t, got.Tags)

	missing, err := store.GetArticleByExternalID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_TransactionRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := store.SaveArticle(ctx, &models.Article{ExternalID: "item-1", FeedID: "feed/a"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetArticleByExternalID(ctx, "item-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = store.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := store.SaveArticle(ctx, &models.Article{ExternalID: "item-2", FeedID: "feed/a"})
		return err
	})
	require.NoError(t, err)
	got, err = store.GetArticleByExternalID(ctx, "item-2")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMemoryStore_RollbackKeepsConcurrentWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	saved := make(chan error, 1)
	err := store.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := store.SaveArticle(txCtx, &models.Article{ExternalID: "item-1", FeedID: "feed/a"}); err != nil {
			return err
		}
		go func() {
			saved <- store.SaveUsage(ctx, models.NewUsageRecord("inoreader", now, 100, 100))
		}()
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, <-saved)

	rec, err := store.GetUsage(ctx, "inoreader", models.DayKey(now))
	require.NoError(t, err)
	assert.NotNil(t, rec)

	got, err := store.GetArticleByExternalID(ctx, "item-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_SidebarCounts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertFeeds(ctx, []*models.Feed{
		{ID: "feed/b", Title: "B"},
		{ID: "feed/a", Title: "A"},
	}))
	for _, a := range []*models.Article{
		{ExternalID: "1", FeedID: "feed/a", Tags: []string{"later"}},
		{ExternalID: "2", FeedID: "feed/a", Read: true, Tags: []string{"later"}},
		{ExternalID: "3", FeedID: "feed/b"},
	} {
		_, err := store.SaveArticle(ctx, a)
		require.NoError(t, err)
	}
	created, err := store.EnsureTags(ctx, []string{"later", "unused"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	feeds, tags, err := store.SidebarCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.FeedCount{
		{FeedID: "feed/a", Title: "A", Unread: 1},
		{FeedID: "feed/b", Title: "B", Unread: 1},
	}, feeds)
	assert.Equal(t, []models.TagCount{
		{Tag: "later", Count: 2},
		{Tag: "unused", Count: 0},
	}, tags)
}

func TestMemoryStore_DeleteArticlesOlderThan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	for _, a := range []*models.Article{
		{ExternalID: "prune", Read: true, LastSyncedAt: old},
		{ExternalID: "unread", LastSyncedAt: old},
		{ExternalID: "starred", Read: true, Starred: true, LastSyncedAt: old},
		{ExternalID: "tagged", Read: true, Tags: []string{"keep"}, LastSyncedAt: old},
		{ExternalID: "recent", Read: true, LastSyncedAt: time.Now()},
		{ExternalID: "edited", Read: true, LastSyncedAt: old, Author: strPtr("x")},
	} {
		_, err := store.SaveArticle(ctx, a)
		require.NoError(t, err)
	}
	require.NoError(t, store.EnqueueEdit(ctx, &models.EditQueueEntry{ItemID: "edited", Action: models.ActionMarkRead}))

	n, err := store.DeleteArticlesOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gone, err := store.GetArticleByExternalID(ctx, "prune")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryStore_EditQueue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	due := &models.EditQueueEntry{ItemID: "1", Action: models.ActionStar, NextAttemptAt: now.Add(-time.Minute)}
	later := &models.EditQueueEntry{ItemID: "1", Action: models.ActionMarkRead, NextAttemptAt: now.Add(time.Hour)}
	standing := &models.EditQueueEntry{ItemID: "1", Action: models.ActionUnstar, Status: models.EditFailed}
	for _, e := range []*models.EditQueueEntry{due, later, standing} {
		require.NoError(t, store.EnqueueEdit(ctx, e))
	}
	assert.Equal(t, models.EditPending, due.Status)

	entries, err := store.ListEdits(ctx, []models.EditStatus{models.EditPending}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, due.ID, entries[0].ID)
	assert.Equal(t, later.ID, entries[1].ID)

	n, err := store.CountEdits(ctx, []models.EditStatus{models.EditPending})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.CountEdits(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	forItem, err := store.PendingEditsFor(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, forItem, 3)

	failed, err := store.ListEdits(ctx, []models.EditStatus{models.EditFailed}, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, standing.ID, failed[0].ID)

	standing.Status = models.EditAbandoned
	require.NoError(t, store.UpdateEdit(ctx, standing))
	forItem, err = store.PendingEditsFor(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, forItem, 2)

	require.NoError(t, store.DeleteEdits(ctx, []int64{due.ID, later.ID}))
	all, err := store.ListEdits(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.GetEdit(ctx, due.ID)
	assert.True(t, apperrors.IsNotFound(err))
}
