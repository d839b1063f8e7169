package api

import (
	"time"

	_ "github.com/Kamar-Folarin/feed-sync/docs"

	"github.com/Kamar-Folarin/feed-sync/internal/syncer"
)

// ErrorResponse represents an API error
// @Description Error response from the API
// @swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// @example Failed to process request
	Error string `json:"error" example:"Failed to process request"`
}

// SyncInProgressResponse is returned when a run is already pending or running
// @Description Conflict response carrying the active run id
// @swagger:model SyncInProgressResponse
type SyncInProgressResponse struct {
	Error string `json:"error" example:"A sync run is already in progress"`
	// Id of the active run
	// @example 3f1c2a9e-5d0b-4c7e-9a61-2b8d7f0e4c11
	RunID string `json:"run_id" example:"3f1c2a9e-5d0b-4c7e-9a61-2b8d7f0e4c11"`
}

// ZoneQuota is the live usage of one quota zone
// @Description Usage of one quota zone for the current UTC day
// @swagger:model ZoneQuota
type ZoneQuota struct {
	Zone       string  `json:"zone" example:"zone1" enums:"zone1,zone2"`
	Used       int64   `json:"used" example:"412"`
	Limit      int64   `json:"limit" example:"5000"`
	Percent    float64 `json:"percent" example:"8.24"`
	LocalCalls int64   `json:"local_calls" example:"37"`
	HeaderSeen bool    `json:"header_seen"`
	CanProceed bool    `json:"can_proceed"`
}

// QuotaResponse represents the current quota state
// @Description Today's quota usage and the delay recommended before the next call
// @swagger:model QuotaResponse
type QuotaResponse struct {
	Service            string      `json:"service" example:"inoreader"`
	Day                string      `json:"day" example:"2024-05-01"`
	ResetAt            time.Time   `json:"reset_at" example:"2024-05-02T00:00:00Z"`
	RecommendedDelayMS int64       `json:"recommended_delay_ms" example:"0"`
	Zones              []ZoneQuota `json:"zones"`
}

// EditRequest is the body of a local article mutation
// @Description A local read/star/tag change to propagate to the remote service
// @swagger:model EditRequest
type EditRequest struct {
	// Action to apply
	// @example star
	Action string `json:"action" binding:"required" example:"star" enums:"mark_read,mark_unread,star,unstar,tag_add,tag_remove"`
	// Tag name, required for tag actions
	// @example later
	Tag string `json:"tag,omitempty" example:"later"`
}

// FlushResponse is the outcome of an edit flush
// @Description Edit flush counters, with the error that stopped the flush early if any
// @swagger:model FlushResponse
type FlushResponse struct {
	syncer.FlushResult
	Error string `json:"error,omitempty" example:"QUOTA_EXCEEDED: zone2 quota exhausted"`
}

// HealthResponse reports service health
// @Description Health of the service and its store
// @swagger:model HealthResponse
type HealthResponse struct {
	Status string `json:"status" example:"ok" enums:"ok,unavailable"`
	Store  string `json:"store" example:"ok"`
}
