package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/ae-comb/app/database"
	"github.com/lysyi3m/ae-comb/app/period"
	"github.com/lysyi3m/ae-comb/app/tasks"
)

const (
	defaultRowLimit = 5
	maxRowLimit     = 500
	runListLimit    = 20
)

type HandlerOptions struct {
	TableName  string
	StartMonth string
	Version    string
	Cache      CacheHealthChecker // nil when no release cache is configured
}

func NewHandler(datasetRepo database.DatasetRepositoryInterface, runRepo RunLister,
	runner LastRunProvider, scheduler tasks.TaskSchedulerInterface, taskRunner tasks.DatasetRunner,
	opts HandlerOptions) *Handler {
	return &Handler{
		datasetRepo: datasetRepo,
		runRepo:     runRepo,
		runner:      runner,
		scheduler:   scheduler,
		taskRunner:  taskRunner,
		cache:       opts.Cache,
		tableName:   opts.TableName,
		startMonth:  opts.StartMonth,
		version:     opts.Version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"database":  h.datasetRepo != nil,
	}

	if h.cache != nil {
		health["cache"] = h.cache.Health(c.Request.Context())
	}

	if run := h.lastRun(c.Request.Context()); run != nil {
		health["last_run_status"] = string(run.Status)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"table": h.tableName,
	}

	if h.datasetRepo != nil {
		if count, err := h.datasetRepo.CountRows(c.Request.Context(), h.tableName); err == nil {
			stats["rows"] = count
		} else {
			slog.Debug("Dataset table not readable", "table", h.tableName, "error", err)
		}

		if latest, err := h.datasetRepo.LatestPeriod(c.Request.Context(), h.tableName); err == nil {
			stats["latest_period"] = latest
		}
	}

	if run := h.lastRun(c.Request.Context()); run != nil {
		stats["last_run"] = newRunResponse(run)
	}

	c.JSON(http.StatusOK, stats)
}

// lastRun prefers the run of this process and falls back to the ledger,
// so a restarted service still reports the previous acquisition.
func (h *Handler) lastRun(ctx context.Context) *database.Run {
	if run := h.runner.LastRun(); run != nil {
		return run
	}
	if h.runRepo == nil {
		return nil
	}

	run, err := h.runRepo.GetLastRun(ctx)
	if err != nil {
		slog.Debug("Run ledger not readable", "error", err)
		return nil
	}
	return run
}

func (h *Handler) GetLatestRows(c *gin.Context) {
	if h.datasetRepo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database disabled"})
		return
	}

	limit := defaultRowLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRowLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxRowLimit)})
			return
		}
		limit = n
	}

	rows, err := h.datasetRepo.LatestRows(c.Request.Context(), h.tableName, limit)
	if err != nil {
		slog.Error("Database error", "operation", "latest_rows", "table", h.tableName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	columns := rows.Columns()
	records := make([]map[string]interface{}, 0, rows.NumRows())
	for i := 0; i < rows.NumRows(); i++ {
		record := make(map[string]interface{}, len(columns))
		for j, cell := range rows.Row(i) {
			record[columns[j]] = cell.Value()
		}
		records = append(records, record)
	}

	c.Header("X-Dataset-Rows", strconv.Itoa(len(records)))
	c.JSON(http.StatusOK, gin.H{
		"table":   h.tableName,
		"columns": columns,
		"rows":    records,
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	if h.runRepo == nil {
		runs := []RunResponse{}
		if run := h.runner.LastRun(); run != nil {
			runs = append(runs, newRunResponse(run))
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
		return
	}

	runs, err := h.runRepo.GetRecentRuns(c.Request.Context(), runListLimit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]RunResponse, 0, len(runs))
	for i := range runs {
		response = append(response, newRunResponse(&runs[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  response,
		"total": len(response),
	})
}

func (h *Handler) APIRefresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.Start == "" {
		req.Start = h.startMonth
	}

	r, err := period.NewRange(req.Start, req.End, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month range", "details": err.Error()})
		return
	}

	acquireTask := tasks.NewAcquireDatasetTask(req.Start, req.End, h.taskRunner)
	if err := h.scheduler.EnqueueTask(acquireTask); err != nil {
		slog.Error("Error enqueueing acquisition task", "range", r.String(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue acquisition task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Acquisition enqueued",
		"range":   r.String(),
		"months":  r.Len(),
		"task": gin.H{
			"id":   acquireTask.ID,
			"type": acquireTask.Type,
		},
	})
}
