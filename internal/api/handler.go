package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/syncer"
)

// SyncService starts runs and reports their state
type SyncService interface {
	Trigger(ctx context.Context) (*models.SyncRun, error)
	GetRun(ctx context.Context, id string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error)
	LastSuccess(ctx context.Context) (*models.SyncRun, error)
	Sidebar(ctx context.Context) (*models.Sidebar, error)
}

// EditService queues local mutations for propagation
type EditService interface {
	Enqueue(ctx context.Context, itemID string, action models.EditAction, tag string) (*models.EditQueueEntry, error)
	List(ctx context.Context, statuses []models.EditStatus, limit int) ([]*models.EditQueueEntry, error)
	Flush(ctx context.Context) (*syncer.FlushResult, error)
	Abandon(ctx context.Context, id int64) (*models.EditQueueEntry, error)
	Retry(ctx context.Context, id int64) (*models.EditQueueEntry, error)
}

// QuotaService exposes the live quota state
type QuotaService interface {
	Snapshot(ctx context.Context) *models.UsageRecord
	Used(zone models.Zone) (used, limit int64)
	CanProceed(zone models.Zone) bool
	RecommendedDelay() time.Duration
}

// UsageHistory lists persisted daily usage records
type UsageHistory interface {
	ListUsage(ctx context.Context, service string, limit int) ([]*models.UsageRecord, error)
	Ping(ctx context.Context) error
}

// Handler serves the status and control API
type Handler struct {
	syncService  SyncService
	editService  EditService
	quotaService QuotaService
	usage        UsageHistory
	service      string
	logger       *logrus.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	syncService SyncService,
	editService EditService,
	quotaService QuotaService,
	usage UsageHistory,
	service string,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		syncService:  syncService,
		editService:  editService,
		quotaService: quotaService,
		usage:        usage,
		service:      service,
		logger:       logger,
	}
}

// TriggerSync starts a new sync run
func (h *Handler) TriggerSync(c *gin.Context) {
	run, err := h.syncService.Trigger(c.Request.Context())
	if err != nil {
		h.respondWithAppError(c, "Failed to trigger sync", err)
		return
	}
	respondWithJSON(c, http.StatusAccepted, run)
}

// GetSyncRun returns one run by id
func (h *Handler) GetSyncRun(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondWithError(c, http.StatusBadRequest, "Run id is required")
		return
	}

	run, err := h.syncService.GetRun(c.Request.Context(), id)
	if err != nil {
		h.respondWithAppError(c, "Failed to get sync run", err)
		return
	}
	respondWithJSON(c, http.StatusOK, run)
}

// ListSyncRuns returns recent runs, newest first
func (h *Handler) ListSyncRuns(c *gin.Context) {
	limit, err := getIntQueryParam(c, "limit", 20)
	if err != nil || limit <= 0 || limit > 500 {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	runs, err := h.syncService.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.respondWithAppError(c, "Failed to list sync runs", err)
		return
	}
	if runs == nil {
		runs = []*models.SyncRun{}
	}
	respondWithJSON(c, http.StatusOK, runs)
}

// GetLastSuccess returns the most recent completed run
func (h *Handler) GetLastSuccess(c *gin.Context) {
	run, err := h.syncService.LastSuccess(c.Request.Context())
	if err != nil {
		h.respondWithAppError(c, "Failed to get last successful run", err)
		return
	}
	respondWithJSON(c, http.StatusOK, run)
}

// GetSidebar returns unread counts per feed and article counts per tag
func (h *Handler) GetSidebar(c *gin.Context) {
	sidebar, err := h.syncService.Sidebar(c.Request.Context())
	if err != nil {
		h.respondWithAppError(c, "Failed to build sidebar", err)
		return
	}
	respondWithJSON(c, http.StatusOK, sidebar)
}

// GetQuota returns today's usage per zone
func (h *Handler) GetQuota(c *gin.Context) {
	rec := h.quotaService.Snapshot(c.Request.Context())

	resp := QuotaResponse{
		Service:            rec.Service,
		Day:                rec.Day,
		ResetAt:            rec.ResetAt,
		RecommendedDelayMS: h.quotaService.RecommendedDelay().Milliseconds(),
		Zones:              make([]ZoneQuota, 0, len(models.Zones)),
	}
	for _, zone := range models.Zones {
		used, limit := h.quotaService.Used(zone)
		zq := ZoneQuota{
			Zone:       string(zone),
			Used:       used,
			Limit:      limit,
			LocalCalls: rec.Zone(zone).LocalCalls,
			HeaderSeen: rec.Zone(zone).HeaderSeen,
			CanProceed: h.quotaService.CanProceed(zone),
		}
		if limit > 0 {
			zq.Percent = float64(used) / float64(limit) * 100
		}
		resp.Zones = append(resp.Zones, zq)
	}
	respondWithJSON(c, http.StatusOK, resp)
}

// GetQuotaHistory returns persisted daily usage, newest first
func (h *Handler) GetQuotaHistory(c *gin.Context) {
	limit, err := getIntQueryParam(c, "limit", 30)
	if err != nil || limit <= 0 || limit > 366 {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	records, err := h.usage.ListUsage(c.Request.Context(), h.service, limit)
	if err != nil {
		h.respondWithAppError(c, "Failed to list quota history", err)
		return
	}
	if records == nil {
		records = []*models.UsageRecord{}
	}
	respondWithJSON(c, http.StatusOK, records)
}

// EnqueueEdit records a local mutation of an article
func (h *Handler) EnqueueEdit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.editService.Enqueue(c.Request.Context(), c.Param("id"), models.EditAction(req.Action), req.Tag)
	if err != nil {
		h.respondWithAppError(c, "Failed to queue edit", err)
		return
	}
	respondWithJSON(c, http.StatusAccepted, entry)
}

// ListEdits returns queued edits, optionally filtered by status
func (h *Handler) ListEdits(c *gin.Context) {
	limit, err := getIntQueryParam(c, "limit", 100)
	if err != nil || limit <= 0 || limit > 1000 {
		respondWithError(c, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	var statuses []models.EditStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.EditStatus(strings.TrimSpace(s))
			switch status {
			case models.EditPending, models.EditFailed, models.EditAbandoned:
				statuses = append(statuses, status)
			default:
				respondWithError(c, http.StatusBadRequest, "Invalid status parameter")
				return
			}
		}
	}

	entries, err := h.editService.List(c.Request.Context(), statuses, limit)
	if err != nil {
		h.respondWithAppError(c, "Failed to list edits", err)
		return
	}
	if entries == nil {
		entries = []*models.EditQueueEntry{}
	}
	respondWithJSON(c, http.StatusOK, entries)
}

// FlushEdits propagates due edits now
func (h *Handler) FlushEdits(c *gin.Context) {
	result, err := h.editService.Flush(c.Request.Context())
	if err != nil && result == nil {
		h.respondWithAppError(c, "Failed to flush edits", err)
		return
	}
	if err != nil {
		h.logger.WithError(err).Warn("Edit flush stopped early")
		respondWithJSON(c, statusFor(err), FlushResponse{FlushResult: *result, Error: err.Error()})
		return
	}
	respondWithJSON(c, http.StatusOK, FlushResponse{FlushResult: *result})
}

// AbandonEdit stops retrying an edit
func (h *Handler) AbandonEdit(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(c, http.StatusBadRequest, "Invalid edit id")
		return
	}

	entry, err := h.editService.Abandon(c.Request.Context(), id)
	if err != nil {
		h.respondWithAppError(c, "Failed to abandon edit", err)
		return
	}
	respondWithJSON(c, http.StatusOK, entry)
}

// RetryEdit makes an edit due immediately
func (h *Handler) RetryEdit(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(c, http.StatusBadRequest, "Invalid edit id")
		return
	}

	entry, err := h.editService.Retry(c.Request.Context(), id)
	if err != nil {
		h.respondWithAppError(c, "Failed to retry edit", err)
		return
	}
	respondWithJSON(c, http.StatusOK, entry)
}

// Health reports whether the store is reachable
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.usage.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		respondWithJSON(c, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Store: err.Error()})
		return
	}
	respondWithJSON(c, http.StatusOK, HealthResponse{Status: "ok", Store: "ok"})
}

func (h *Handler) respondWithAppError(c *gin.Context, message string, err error) {
	var inProgress *apperrors.SyncInProgressError
	if errors.As(err, &inProgress) {
		respondWithJSON(c, http.StatusConflict, SyncInProgressResponse{
			Error: "A sync run is already in progress",
			RunID: inProgress.RunID,
		})
		return
	}

	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error(message)
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && code < http.StatusInternalServerError {
		respondWithError(c, code, appErr.Message)
		return
	}
	respondWithError(c, code, message)
}

func statusFor(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case apperrors.IsQuotaExceeded(err):
		return http.StatusTooManyRequests
	case apperrors.IsUnauthorized(err), apperrors.IsTransient(err), apperrors.IsMalformed(err):
		return http.StatusBadGateway
	case apperrors.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable
	case apperrors.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondWithJSON(c *gin.Context, code int, payload interface{}) {
	c.JSON(code, payload)
}

func respondWithError(c *gin.Context, code int, message string) {
	respondWithJSON(c, code, ErrorResponse{Error: message})
}

func getIntQueryParam(c *gin.Context, param string, defaultValue int) (int, error) {
	value := c.Query(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
