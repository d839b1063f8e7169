package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/syncer"
)

func TestRouteRegistration(t *testing.T) {
	router, deps := setupTestHandler(t)

	deps.sync.On("Trigger", mock.Anything).Return(&models.SyncRun{ID: "run-1"}, nil)
	deps.sync.On("ListRuns", mock.Anything, mock.Anything).Return([]*models.SyncRun{}, nil)
	deps.sync.On("GetRun", mock.Anything, "run-1").Return(&models.SyncRun{ID: "run-1"}, nil)
	deps.sync.On("LastSuccess", mock.Anything).Return(&models.SyncRun{ID: "run-1"}, nil)
	deps.sync.On("Sidebar", mock.Anything).Return(&models.Sidebar{}, nil)
	deps.usage.On("ListUsage", mock.Anything, "inoreader", mock.Anything).Return([]*models.UsageRecord{}, nil)
	deps.usage.On("Ping", mock.Anything).Return(nil)
	deps.edits.On("List", mock.Anything, mock.Anything, mock.Anything).Return([]*models.EditQueueEntry{}, nil)
	deps.edits.On("Flush", mock.Anything).Return(&syncer.FlushResult{}, nil)
	deps.edits.On("Abandon", mock.Anything, int64(1)).Return(&models.EditQueueEntry{ID: 1}, nil)
	deps.edits.On("Retry", mock.Anything, int64(1)).Return(&models.EditQueueEntry{ID: 1}, nil)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"health", http.MethodGet, "/api/v1/health", http.StatusOK},
		{"trigger sync", http.MethodPost, "/api/v1/sync", http.StatusAccepted},
		{"list runs", http.MethodGet, "/api/v1/sync/runs", http.StatusOK},
		{"get run", http.MethodGet, "/api/v1/sync/runs/run-1", http.StatusOK},
		{"last success", http.MethodGet, "/api/v1/sync/last-success", http.StatusOK},
		{"sidebar", http.MethodGet, "/api/v1/sidebar", http.StatusOK},
		{"quota history", http.MethodGet, "/api/v1/quota/history", http.StatusOK},
		{"enqueue edit without body", http.MethodPost, "/api/v1/articles/item-1/edits", http.StatusBadRequest},
		{"list edits", http.MethodGet, "/api/v1/edits", http.StatusOK},
		{"flush edits", http.MethodPost, "/api/v1/edits/flush", http.StatusOK},
		{"abandon edit", http.MethodPost, "/api/v1/edits/1/abandon", http.StatusOK},
		{"retry edit", http.MethodPost, "/api/v1/edits/1/retry", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/repositories", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	router, deps := setupTestHandler(t)
	deps.usage.On("Ping", mock.Anything).Return(nil)

	handler := WithCORS(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodOptions, "/api/v1/sync", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	handler.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}
