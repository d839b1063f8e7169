package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// handlerTimeout bounds the read endpoints; flush carries its own timeout
const handlerTimeout = 15 * time.Second

// @title Feed Sync API
// @version 1.0
// @description API for synchronizing a Google Reader compatible feed account into a local store
// @contact.name API Support
// @contact.url http://github.com/Kamar-Folarin
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		// @Summary Health check
		// @Description Report whether the service and its store are reachable
		// @Tags health
		// @Produce json
		// @Success 200 {object} HealthResponse
		// @Failure 503 {object} HealthResponse
		// @Router /health [get]
		v1.GET("/health", h.Health)

		sync := v1.Group("/sync")
		{
			// @Summary Trigger a sync run
			// @Description Start a sync run in the background. Only one run may be active at a time.
			// @Tags sync
			// @Produce json
			// @Success 202 {object} models.SyncRun
			// @Failure 409 {object} SyncInProgressResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /sync [post]
			sync.POST("", h.TriggerSync)

			// @Summary List sync runs
			// @Description Get recent sync runs, newest first
			// @Tags sync
			// @Produce json
			// @Param limit query int false "Number of runs to return" default(20)
			// @Success 200 {array} models.SyncRun
			// @Failure 400 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /sync/runs [get]
			sync.GET("/runs", withTimeout(handlerTimeout, h.ListSyncRuns))

			// @Summary Get a sync run
			// @Description Get the status, progress and counters of one run
			// @Tags sync
			// @Produce json
			// @Param id path string true "Run ID"
			// @Success 200 {object} models.SyncRun
			// @Failure 404 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /sync/runs/{id} [get]
			sync.GET("/runs/:id", withTimeout(handlerTimeout, h.GetSyncRun))

			// @Summary Get the last successful run
			// @Description Get the most recent completed run
			// @Tags sync
			// @Produce json
			// @Success 200 {object} models.SyncRun
			// @Failure 404 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /sync/last-success [get]
			sync.GET("/last-success", withTimeout(handlerTimeout, h.GetLastSuccess))
		}

		// @Summary Get sidebar counts
		// @Description Get unread counts per feed and article counts per tag
		// @Tags sync
		// @Produce json
		// @Success 200 {object} models.Sidebar
		// @Failure 500 {object} ErrorResponse
		// @Router /sidebar [get]
		v1.GET("/sidebar", withTimeout(handlerTimeout, h.GetSidebar))

		quota := v1.Group("/quota")
		{
			// @Summary Get quota usage
			// @Description Get today's usage per zone and the recommended delay before the next call
			// @Tags quota
			// @Produce json
			// @Success 200 {object} QuotaResponse
			// @Router /quota [get]
			quota.GET("", withTimeout(handlerTimeout, h.GetQuota))

			// @Summary Get quota history
			// @Description Get persisted daily usage records, newest first
			// @Tags quota
			// @Produce json
			// @Param limit query int false "Number of days to return" default(30)
			// @Success 200 {array} models.UsageRecord
			// @Failure 400 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /quota/history [get]
			quota.GET("/history", withTimeout(handlerTimeout, h.GetQuotaHistory))
		}

		// @Summary Queue an article edit
		// @Description Apply a read, star or tag change locally and queue it for the remote service
		// @Tags edits
		// @Accept json
		// @Produce json
		// @Param id path string true "Item ID"
		// @Param request body EditRequest true "Edit"
		// @Success 202 {object} models.EditQueueEntry
		// @Failure 400 {object} ErrorResponse
		// @Failure 500 {object} ErrorResponse
		// @Router /articles/{id}/edits [post]
		v1.POST("/articles/:id/edits", withTimeout(handlerTimeout, h.EnqueueEdit))

		edits := v1.Group("/edits")
		{
			// @Summary List queued edits
			// @Description List edits, optionally filtered by a comma separated status list
			// @Tags edits
			// @Produce json
			// @Param status query string false "Statuses" example("pending,failed")
			// @Param limit query int false "Number of edits to return" default(100)
			// @Success 200 {array} models.EditQueueEntry
			// @Failure 400 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /edits [get]
			edits.GET("", withTimeout(handlerTimeout, h.ListEdits))

			// @Summary Flush queued edits
			// @Description Propagate due edits to the remote service now
			// @Tags edits
			// @Produce json
			// @Success 200 {object} FlushResponse
			// @Failure 429 {object} FlushResponse
			// @Failure 502 {object} FlushResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /edits/flush [post]
			edits.POST("/flush", h.FlushEdits)

			// @Summary Abandon an edit
			// @Description Stop retrying an edit; the local change is kept
			// @Tags edits
			// @Produce json
			// @Param id path int true "Edit ID"
			// @Success 200 {object} models.EditQueueEntry
			// @Failure 400 {object} ErrorResponse
			// @Failure 404 {object} ErrorResponse
			// @Router /edits/{id}/abandon [post]
			edits.POST("/:id/abandon", withTimeout(handlerTimeout, h.AbandonEdit))

			// @Summary Retry an edit
			// @Description Reset attempts and make the edit due immediately
			// @Tags edits
			// @Produce json
			// @Param id path int true "Edit ID"
			// @Success 200 {object} models.EditQueueEntry
			// @Failure 400 {object} ErrorResponse
			// @Failure 404 {object} ErrorResponse
			// @Router /edits/{id}/retry [post]
			edits.POST("/:id/retry", withTimeout(handlerTimeout, h.RetryEdit))
		}
	}

	return r
}

// WithCORS wraps the router with the CORS policy of the public API
func WithCORS(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(h)
}

func withTimeout(d time.Duration, fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		fn(c)
	}
}
