package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/syncer"
)

// MockSyncService is a mock implementation of SyncService
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Trigger(ctx context.Context) (*models.SyncRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncRun), args.Error(1)
}

func (m *MockSyncService) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncRun), args.Error(1)
}

func (m *MockSyncService) ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SyncRun), args.Error(1)
}

func (m *MockSyncService) LastSuccess(ctx context.Context) (*models.SyncRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncRun), args.Error(1)
}

func (m *MockSyncService) Sidebar(ctx context.Context) (*models.Sidebar, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Sidebar), args.Error(1)
}

// MockEditService is a mock implementation of EditService
type MockEditService struct {
	mock.Mock
}

func (m *MockEditService) Enqueue(ctx context.Context, itemID string, action models.EditAction, tag string) (*models.EditQueueEntry, error) {
	args := m.Called(ctx, itemID, action, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EditQueueEntry), args.Error(1)
}

func (m *MockEditService) List(ctx context.Context, statuses []models.EditStatus, limit int) ([]*models.EditQueueEntry, error) {
	args := m.Called(ctx, statuses, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.EditQueueEntry), args.Error(1)
}

func (m *MockEditService) Flush(ctx context.Context) (*syncer.FlushResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncer.FlushResult), args.Error(1)
}

func (m *MockEditService) Abandon(ctx context.Context, id int64) (*models.EditQueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EditQueueEntry), args.Error(1)
}

func (m *MockEditService) Retry(ctx context.Context, id int64) (*models.EditQueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EditQueueEntry), args.Error(1)
}

// MockQuotaService is a mock implementation of QuotaService
type MockQuotaService struct {
	mock.Mock
}

func (m *MockQuotaService) Snapshot(ctx context.Context) *models.UsageRecord {
	args := m.Called(ctx)
	return args.Get(0).(*models.UsageRecord)
}

func (m *MockQuotaService) Used(zone models.Zone) (int64, int64) {
	args := m.Called(zone)
	return args.Get(0).(int64), args.Get(1).(int64)
}

func (m *MockQuotaService) CanProceed(zone models.Zone) bool {
	args := m.Called(zone)
	return args.Bool(0)
}

func (m *MockQuotaService) RecommendedDelay() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

// MockUsageHistory is a mock implementation of UsageHistory
type MockUsageHistory struct {
	mock.Mock
}

func (m *MockUsageHistory) ListUsage(ctx context.Context, service string, limit int) ([]*models.UsageRecord, error) {
	args := m.Called(ctx, service, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UsageRecord), args.Error(1)
}

func (m *MockUsageHistory) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type testDeps struct {
	sync  *MockSyncService
	edits *MockEditService
	quota *MockQuotaService
	usage *MockUsageHistory
}

func setupTestHandler(t *testing.T) (*gin.Engine, *testDeps) {
	gin.SetMode(gin.TestMode)

	deps := &testDeps{
		sync:  new(MockSyncService),
		edits: new(MockEditService),
		quota: new(MockQuotaService),
		usage: new(MockUsageHistory),
	}
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))

	handler := NewHandler(deps.sync, deps.edits, deps.quota, deps.usage, "inoreader", logger)
	t.Cleanup(func() {
		deps.sync.AssertExpectations(t)
		deps.edits.AssertExpectations(t)
		deps.quota.AssertExpectations(t)
		deps.usage.AssertExpectations(t)
	})
	return SetupRouter(handler), deps
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTriggerSync(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		run := &models.SyncRun{ID: "run-1", Status: models.RunPending}
		deps.sync.On("Trigger", mock.Anything).Return(run, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/sync", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		var got models.SyncRun
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.ID)
		assert.Equal(t, models.RunPending, got.Status)
	})

	t.Run("already in progress", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.sync.On("Trigger", mock.Anything).Return(nil, apperrors.NewSyncInProgressError("run-0"))

		w := doRequest(router, http.MethodPost, "/api/v1/sync", "")

		assert.Equal(t, http.StatusConflict, w.Code)
		var got SyncInProgressResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "run-0", got.RunID)
	})

	t.Run("store down", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.sync.On("Trigger", mock.Anything).
			Return(nil, apperrors.NewStoreUnavailableError("database unreachable", errors.New("dial tcp")))

		w := doRequest(router, http.MethodPost, "/api/v1/sync", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "Failed to trigger sync")
	})
}

func TestGetSyncRun(t *testing.T) {
	router, deps := setupTestHandler(t)
	progress := 42.5
	deps.sync.On("GetRun", mock.Anything, "run-1").
		Return(&models.SyncRun{ID: "run-1", Status: models.RunRunning, Progress: &progress}, nil)
	deps.sync.On("GetRun", mock.Anything, "missing").
		Return(nil, apperrors.NewNotFoundError("sync run not found", nil))

	w := doRequest(router, http.MethodGet, "/api/v1/sync/runs/run-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var got models.SyncRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Progress)
	assert.Equal(t, 42.5, *got.Progress)

	w = doRequest(router, http.MethodGet, "/api/v1/sync/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "sync run not found")
}

func TestListSyncRuns(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.sync.On("ListRuns", mock.Anything, 20).Return(nil, nil).Once()
	deps.sync.On("ListRuns", mock.Anything, 5).Return([]*models.SyncRun{{ID: "a"}, {ID: "b"}}, nil).Once()

	w := doRequest(router, http.MethodGet, "/api/v1/sync/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/sync/runs?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var got []models.SyncRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	for _, bad := range []string{"abc", "0", "-1", "501"} {
		w = doRequest(router, http.MethodGet, "/api/v1/sync/runs?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestGetLastSuccess(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.sync.On("LastSuccess", mock.Anything).
		Return(nil, apperrors.NewNotFoundError("no sync run has completed yet", nil))

	w := doRequest(router, http.MethodGet, "/api/v1/sync/last-success", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no sync run has completed yet")
}

func TestGetSidebar(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.sync.On("Sidebar", mock.Anything).Return(&models.Sidebar{
		Feeds:       []models.FeedCount{{FeedID: "feed/a", Title: "A", Unread: 3}},
		Tags:        []models.TagCount{{Tag: "later", Count: 1}},
		TotalUnread: 3,
	}, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/sidebar", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var got models.Sidebar
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalUnread)
	assert.Equal(t, "feed/a", got.Feeds[0].FeedID)
}

func TestGetQuota(t *testing.T) {
	router, deps := setupTestHandler(t)
	rec := models.NewUsageRecord("inoreader", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), 5000, 1000)
	rec.Zone1.LocalCalls = 12
	rec.Zone1.HeaderSeen = true

	deps.quota.On("Snapshot", mock.Anything).Return(rec)
	deps.quota.On("RecommendedDelay").Return(1500 * time.Millisecond)
	deps.quota.On("Used", models.ZoneRead).Return(int64(2500), int64(5000))
	deps.quota.On("Used", models.ZoneWrite).Return(int64(1000), int64(1000))
	deps.quota.On("CanProceed", models.ZoneRead).Return(true)
	deps.quota.On("CanProceed", models.ZoneWrite).Return(false)

	w := doRequest(router, http.MethodGet, "/api/v1/quota", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var got QuotaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "2024-05-01", got.Day)
	assert.Equal(t, int64(1500), got.RecommendedDelayMS)
	require.Len(t, got.Zones, 2)
	assert.Equal(t, ZoneQuota{Zone: "zone1", Used: 2500, Limit: 5000, Percent: 50, LocalCalls: 12, HeaderSeen: true, CanProceed: true}, got.Zones[0])
	assert.Equal(t, "zone2", got.Zones[1].Zone)
	assert.Equal(t, float64(100), got.Zones[1].Percent)
	assert.False(t, got.Zones[1].CanProceed)
}

func TestGetQuotaHistory(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.usage.On("ListUsage", mock.Anything, "inoreader", 7).
		Return([]*models.UsageRecord{{Service: "inoreader", Day: "2024-05-01"}}, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/quota/history?limit=7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2024-05-01")

	w = doRequest(router, http.MethodGet, "/api/v1/quota/history?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnqueueEdit(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.edits.On("Enqueue", mock.Anything, "item-1", models.ActionTagAdd, "later").
			Return(&models.EditQueueEntry{ID: 7, ItemID: "item-1", Action: models.ActionTagAdd, Tag: "later", Status: models.EditPending}, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/articles/item-1/edits", `{"action":"tag_add","tag":"later"}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
		var got models.EditQueueEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, int64(7), got.ID)
	})

	t.Run("missing action", func(t *testing.T) {
		router, _ := setupTestHandler(t)
		w := doRequest(router, http.MethodPost, "/api/v1/articles/item-1/edits", `{"tag":"later"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid action", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.edits.On("Enqueue", mock.Anything, "item-1", models.EditAction("archive"), "").
			Return(nil, apperrors.NewValidationError("unknown edit action \"archive\"", nil))

		w := doRequest(router, http.MethodPost, "/api/v1/articles/item-1/edits", `{"action":"archive"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown edit action")
	})
}

func TestListEdits(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.edits.On("List", mock.Anything, []models.EditStatus{models.EditPending, models.EditFailed}, 100).
		Return([]*models.EditQueueEntry{{ID: 1}}, nil)
	deps.edits.On("List", mock.Anything, []models.EditStatus(nil), 10).Return(nil, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/edits?status=pending,failed", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/edits?limit=10", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/edits?status=done", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlushEdits(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.edits.On("Flush", mock.Anything).Return(&syncer.FlushResult{Propagated: 3, Superseded: 1}, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/edits/flush", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"propagated":3,"remaining":0,"failed":0,"superseded":1}`, w.Body.String())
	})

	t.Run("stopped by quota", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.edits.On("Flush", mock.Anything).
			Return(&syncer.FlushResult{Propagated: 1, Remaining: 4}, apperrors.NewQuotaExceededError("zone2", 1000, 1000, time.Hour))

		w := doRequest(router, http.MethodPost, "/api/v1/edits/flush", "")

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		var got FlushResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 1, got.Propagated)
		assert.Equal(t, 4, got.Remaining)
		assert.NotEmpty(t, got.Error)
	})

	t.Run("store down", func(t *testing.T) {
		router, deps := setupTestHandler(t)
		deps.edits.On("Flush", mock.Anything).
			Return(nil, apperrors.NewStoreUnavailableError("database unreachable", nil))

		w := doRequest(router, http.MethodPost, "/api/v1/edits/flush", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestAbandonAndRetryEdit(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.edits.On("Abandon", mock.Anything, int64(3)).
		Return(&models.EditQueueEntry{ID: 3, Status: models.EditAbandoned}, nil)
	deps.edits.On("Retry", mock.Anything, int64(4)).
		Return(nil, apperrors.NewNotFoundError("edit not found", nil))

	w := doRequest(router, http.MethodPost, "/api/v1/edits/3/abandon", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"abandoned"`)

	w = doRequest(router, http.MethodPost, "/api/v1/edits/4/retry", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/edits/x/retry", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.usage.On("Ping", mock.Anything).Return(nil).Once()
	deps.usage.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()

	w := doRequest(router, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":"ok"}`, w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperrors.NewNotFoundError("x", nil), http.StatusNotFound},
		{"invalid input", apperrors.NewValidationError("x", nil), http.StatusBadRequest},
		{"quota", apperrors.NewQuotaExceededError("zone1", 1, 1, time.Minute), http.StatusTooManyRequests},
		{"unauthorized", apperrors.NewUnauthorizedError("x", nil), http.StatusBadGateway},
		{"transient", apperrors.NewTransientError("x", nil), http.StatusBadGateway},
		{"store", apperrors.NewStoreUnavailableError("x", nil), http.StatusServiceUnavailable},
		{"timeout", apperrors.NewTimeoutError("x", nil), http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
