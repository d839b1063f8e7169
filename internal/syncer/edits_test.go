package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Kamar-Folarin/feed-sync/internal/config"
	"github.com/Kamar-Folarin/feed-sync/internal/db"
	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/events"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/reader"
	"github.com/Kamar-Folarin/feed-sync/internal/syncer/mocks"
)

type EditQueueTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	remote    *mocks.MockRemote
	store     *db.MemoryStore
	publisher *recordingPublisher
	cfg       *config.SyncConfig
	now       time.Time
	queue     *EditQueue
}

func (s *EditQueueTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.remote = mocks.NewMockRemote(s.ctrl)
	s.store = db.NewMemoryStore()
	s.publisher = &recordingPublisher{}
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.cfg = config.DefaultSyncConfig()
	s.cfg.Edits.MaxAttempts = 3
	s.cfg.Edits.InitialBackoff = 30 * time.Second
	s.cfg.Edits.MaxBackoff = time.Hour
	s.newQueue()
}

func (s *EditQueueTestSuite) newQueue() {
	s.queue = NewEditQueue(s.remote, s.store, s.publisher, s.cfg, quietLogger())
	s.queue.now = func() time.Time { return s.now }
}

func (s *EditQueueTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestEditQueueTestSuite(t *testing.T) {
	suite.Run(t, new(EditQueueTestSuite))
}

func (s *EditQueueTestSuite) TestEnqueue_AppliesLocalMutation() {
	ctx := context.Background()
	_, err := s.store.SaveArticle(ctx, &models.Article{ExternalID: "item-1", FeedID: "feed/a"})
	s.Require().NoError(err)

	entry, err := s.queue.Enqueue(ctx, "item-1", models.ActionStar, "")
	s.Require().NoError(err)
	s.NotZero(entry.ID)
	s.Equal(models.EditPending, entry.Status)

	_, err = s.queue.Enqueue(ctx, "item-1", models.ActionTagAdd, "later")
	s.Require().NoError(err)

	article, err := s.store.GetArticleByExternalID(ctx, "item-1")
	s.Require().NoError(err)
	s.True(article.Starred)
	s.Equal([]string{"later"}, article.Tags)

	pending, err := s.queue.Pending(ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 2)
}

func (s *EditQueueTestSuite) TestEnqueue_UnknownItemIsStillQueued() {
	_, err := s.queue.Enqueue(context.Background(), "not-synced-yet", models.ActionMarkRead, "")
	s.Require().NoError(err)

	pending, err := s.queue.Pending(context.Background(), 10)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *EditQueueTestSuite) TestEnqueue_Validation() {
	ctx := context.Background()

	_, err := s.queue.Enqueue(ctx, "", models.ActionStar, "")
	s.True(apperrors.IsInvalidInput(err))

	_, err = s.queue.Enqueue(ctx, "item-1", models.EditAction("archive"), "")
	s.True(apperrors.IsInvalidInput(err))

	_, err = s.queue.Enqueue(ctx, "item-1", models.ActionTagAdd, "  ")
	s.True(apperrors.IsInvalidInput(err))
}

func (s *EditQueueTestSuite) TestFlush_CoalescesFamilies() {
	ctx := context.Background()
	_, err := s.queue.Enqueue(ctx, "item-1", models.ActionMarkRead, "")
	s.Require().NoError(err)
	_, err = s.queue.Enqueue(ctx, "item-1", models.ActionMarkUnread, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), "", reader.StateRead, []string{"item-1"}).Return(nil)

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Propagated: 1, Superseded: 1}, result)

	all, err := s.queue.List(ctx, nil, 10)
	s.Require().NoError(err)
	s.Empty(all)

	// nothing left to send
	result, err = s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{}, result)
}

func (s *EditQueueTestSuite) TestFlush_BatchesByActionAndTag() {
	s.cfg.BatchConfig.Size = 2
	s.newQueue()
	ctx := context.Background()

	for _, id := range []string{"item-1", "item-2", "item-3"} {
		_, err := s.queue.Enqueue(ctx, id, models.ActionStar, "")
		s.Require().NoError(err)
	}
	_, err := s.queue.Enqueue(ctx, "item-1", models.ActionTagRemove, "later")
	s.Require().NoError(err)

	gomock.InOrder(
		s.remote.EXPECT().EditTag(gomock.Any(), reader.StateStarred, "", []string{"item-1", "item-2"}).Return(nil),
		s.remote.EXPECT().EditTag(gomock.Any(), reader.StateStarred, "", []string{"item-3"}).Return(nil),
		s.remote.EXPECT().EditTag(gomock.Any(), "", "user/-/label/later", []string{"item-1"}).Return(nil),
	)

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(4, result.Propagated)
	s.Zero(result.Remaining)
}

func (s *EditQueueTestSuite) TestFlush_TransientFailureSchedulesRetry() {
	ctx := context.Background()
	entry, err := s.queue.Enqueue(ctx, "item-1", models.ActionStar, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), reader.StateStarred, "", []string{"item-1"}).
		Return(apperrors.NewTransientError("bad gateway", nil))

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Remaining: 1}, result)

	stored, err := s.store.GetEdit(ctx, entry.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.Attempts)
	s.Equal(models.EditPending, stored.Status)
	s.Equal(s.now.Add(30*time.Second), stored.NextAttemptAt)
	s.Contains(stored.LastError, "bad gateway")

	// not due yet
	result, err = s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Remaining: 1}, result)
}

func (s *EditQueueTestSuite) TestFlush_RequestTimeoutSchedulesRetry() {
	ctx := context.Background()
	entry, err := s.queue.Enqueue(ctx, "item-1", models.ActionStar, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), reader.StateStarred, "", []string{"item-1"}).
		Return(apperrors.NewTransientError("request failed", context.DeadlineExceeded))

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Remaining: 1}, result)

	stored, err := s.store.GetEdit(ctx, entry.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.Attempts)
	s.Equal(s.now.Add(30*time.Second), stored.NextAttemptAt)
}

func (s *EditQueueTestSuite) TestFlush_StandingErrorAfterMaxAttempts() {
	s.cfg.Edits.MaxAttempts = 1
	s.newQueue()
	ctx := context.Background()

	entry, err := s.queue.Enqueue(ctx, "item-1", models.ActionMarkRead, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), reader.StateRead, "", []string{"item-1"}).
		Return(apperrors.NewNotFoundError("item not found", nil))

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Failed: 1}, result)
	s.Contains(s.publisher.types(), events.EditStandingError)

	standing, err := s.queue.Standing(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(standing, 1)
	s.Equal(entry.ID, standing[0].ID)

	retried, err := s.queue.Retry(ctx, entry.ID)
	s.Require().NoError(err)
	s.Equal(models.EditPending, retried.Status)
	s.Zero(retried.Attempts)

	abandoned, err := s.queue.Abandon(ctx, entry.ID)
	s.Require().NoError(err)
	s.Equal(models.EditAbandoned, abandoned.Status)

	result, err = s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{}, result)
}

func (s *EditQueueTestSuite) TestFlush_QuotaStopsEarly() {
	ctx := context.Background()
	star, err := s.queue.Enqueue(ctx, "item-1", models.ActionStar, "")
	s.Require().NoError(err)
	read, err := s.queue.Enqueue(ctx, "item-2", models.ActionMarkRead, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), reader.StateStarred, "", []string{"item-1"}).
		Return(apperrors.NewQuotaExceededError("zone2", 1000, 1000, time.Hour))

	result, err := s.queue.Flush(ctx)
	s.Require().Error(err)
	s.True(apperrors.IsQuotaExceeded(err))
	s.Equal(&FlushResult{Remaining: 2}, result)

	for _, id := range []int64{star.ID, read.ID} {
		stored, err := s.store.GetEdit(ctx, id)
		s.Require().NoError(err)
		s.Zero(stored.Attempts)
		s.Equal(models.EditPending, stored.Status)
	}
}

func (s *EditQueueTestSuite) TestFlush_StandingEntriesDoNotCrowdOutPending() {
	s.cfg.Edits.FlushLimit = 3
	s.newQueue()
	ctx := context.Background()

	for _, id := range []string{"item-1", "item-2", "item-3"} {
		s.Require().NoError(s.store.EnqueueEdit(ctx, &models.EditQueueEntry{
			ItemID:     id,
			Action:     models.ActionStar,
			EnqueuedAt: s.now.Add(-time.Hour),
			Attempts:   3,
			Status:     models.EditFailed,
		}))
	}
	_, err := s.queue.Enqueue(ctx, "item-9", models.ActionMarkRead, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), reader.StateRead, "", []string{"item-9"}).Return(nil)

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Propagated: 1}, result)

	standing, err := s.queue.Standing(ctx, 10)
	s.Require().NoError(err)
	s.Len(standing, 3)
}

func (s *EditQueueTestSuite) TestFlush_PendingSupersedesStandingOfSameFamily() {
	ctx := context.Background()
	old := &models.EditQueueEntry{
		ItemID:     "item-1",
		Action:     models.ActionMarkRead,
		EnqueuedAt: s.now.Add(-time.Hour),
		Attempts:   3,
		Status:     models.EditFailed,
	}
	s.Require().NoError(s.store.EnqueueEdit(ctx, old))
	_, err := s.queue.Enqueue(ctx, "item-1", models.ActionMarkUnread, "")
	s.Require().NoError(err)

	s.remote.EXPECT().EditTag(gomock.Any(), "", reader.StateRead, []string{"item-1"}).Return(nil)

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Propagated: 1, Superseded: 1}, result)

	_, err = s.store.GetEdit(ctx, old.ID)
	s.True(apperrors.IsNotFound(err))
}

func (s *EditQueueTestSuite) TestFlush_CountsPendingBeyondLimit() {
	s.cfg.Edits.FlushLimit = 2
	s.newQueue()
	ctx := context.Background()

	for _, id := range []string{"item-1", "item-2", "item-3"} {
		_, err := s.queue.Enqueue(ctx, id, models.ActionMarkRead, "")
		s.Require().NoError(err)
	}

	gomock.InOrder(
		s.remote.EXPECT().EditTag(gomock.Any(), reader.StateRead, "", []string{"item-1", "item-2"}).Return(nil),
		s.remote.EXPECT().EditTag(gomock.Any(), reader.StateRead, "", []string{"item-3"}).Return(nil),
	)

	result, err := s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Propagated: 2, Remaining: 1}, result)

	result, err = s.queue.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(&FlushResult{Propagated: 1}, result)
}

func (s *EditQueueTestSuite) TestAbandon_UnknownEntry() {
	_, err := s.queue.Abandon(context.Background(), 42)
	s.True(apperrors.IsNotFound(err))
}

func (s *EditQueueTestSuite) TestRetryDelay_GrowsAndCaps() {
	s.cfg.Edits.MaxBackoff = 2 * time.Minute
	s.newQueue()

	s.Equal(30*time.Second, s.queue.retryDelay(1))
	s.Equal(45*time.Second, s.queue.retryDelay(2))
	s.Equal(2*time.Minute, s.queue.retryDelay(10))
}
