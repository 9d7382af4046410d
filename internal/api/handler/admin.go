package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/cardpulse/cardpulse/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles operator endpoints: triggering and inspecting
// ingestion jobs, running snapshot aggregation, and scheduler status.
type AdminHandler struct {
	scrape    *service.ScrapeService
	snapshot  *service.SnapshotService
	scheduler *service.Scheduler
	jobs      service.JobStore
	logger    *logger.Logger
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - scrape: scrape service instance.
//   - snapshot: snapshot service instance.
//   - scheduler: scheduler instance.
//   - jobs: job record reads.
//   - log: logger instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(
	scrape *service.ScrapeService,
	snapshot *service.SnapshotService,
	scheduler *service.Scheduler,
	jobs service.JobStore,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		scrape:    scrape,
		snapshot:  snapshot,
		scheduler: scheduler,
		jobs:      jobs,
		logger:    log,
	}
}

// TriggerScrapeRequest represents the scrape trigger API request.
type TriggerScrapeRequest struct {
	Mode string `json:"mode"`
}

// TriggerScrapeResponse represents the scrape trigger API response.
type TriggerScrapeResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// TriggerScrape handles POST /api/v1/admin/scrape. The run executes
// asynchronously; the response carries the job ID to poll.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerScrape(c *gin.Context) {
	ctx := c.Request.Context()

	// Body is optional; an empty body means a scheduled-mode run.
	var req TriggerScrapeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	mode := domain.ScrapeModeScheduled
	switch req.Mode {
	case "", string(domain.ScrapeModeScheduled):
	case string(domain.ScrapeModeBackfill):
		mode = domain.ScrapeModeBackfill
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown mode: " + req.Mode})
		return
	}

	logger.CtxInfo(ctx, "Received scrape trigger: mode=%s, client_ip=%s", mode, c.ClientIP())

	jobID, err := h.scrape.Trigger(ctx, mode)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyRunning) {
			logger.CtxWarn(ctx, "Scrape trigger rejected: a job is already running, client_ip=%s", c.ClientIP())
			c.JSON(http.StatusConflict, gin.H{
				"error":         "A scrape job is already running",
				"active_job_id": h.scrape.ActiveJobID(),
			})
			return
		}
		logger.CtxError(ctx, "Failed to start scrape job: error=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, TriggerScrapeResponse{
		JobID:   jobID,
		Message: "Scrape job started",
	})
}

// GetJob handles GET /api/v1/admin/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) GetJob(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/admin/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.jobs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// CancelJob handles POST /api/v1/admin/jobs/:id/cancel. Cancellation stops
// dispatch of new items; items already in flight finish and are recorded.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	if !h.scrape.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not running"})
		return
	}

	logger.CtxInfo(c.Request.Context(), "Job cancellation requested: job_id=%s, client_ip=%s", id, c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"message": "Cancellation requested"})
}

// RunSnapshots handles POST /api/v1/admin/snapshots/run. Runs synchronously;
// a window already snapshotted reports its rows as skipped.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) RunSnapshots(c *gin.Context) {
	ctx := c.Request.Context()
	windowEnd := time.Now().UTC().Truncate(time.Hour)

	start := time.Now()
	stats, err := h.snapshot.Run(ctx, windowEnd)
	if err != nil {
		logger.CtxError(ctx, "Snapshot run failed: error=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      stats.Written,
	}).Info(ctx, "Snapshot run completed: items=%d, written=%d, skipped=%d, failures=%d",
		stats.Items, stats.Written, stats.Skipped, stats.Failures)

	c.JSON(http.StatusOK, gin.H{
		"window_end": windowEnd.Format(time.RFC3339),
		"stats":      stats,
	})
}

// SchedulerStatus handles GET /api/v1/admin/scheduler.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
