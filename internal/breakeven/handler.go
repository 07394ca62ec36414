package breakeven

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/tartanilla-earnings/internal/audit"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/middleware"
	"github.com/shopspring/decimal"
)

// Breakeven is the service surface the handler serves.
type Breakeven interface {
	Report(ctx context.Context, req ReportRequest) (*Report, error)
	History(ctx context.Context, req HistoryRequest) (*History, error)
	Snapshot(ctx context.Context, onlyDriver string) []JobResult
}

// Handler handles HTTP requests for breakeven reports and snapshots
type Handler struct {
	service    Breakeven
	audit      audit.Recorder
	cronSecret string
}

// NewHandler creates a new breakeven handler. An empty cronSecret leaves
// the snapshot trigger open.
func NewHandler(service Breakeven, recorder audit.Recorder, cronSecret string) *Handler {
	return &Handler{service: service, audit: recorder, cronSecret: cronSecret}
}

// SnapshotRequest optionally limits a snapshot run to one driver.
type SnapshotRequest struct {
	DriverID string `json:"driver_id"`
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truthy(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return def
	case "1", "true", "yes":
		return true
	}
	return false
}

// GetReport returns a driver's live breakeven position
// GET /api/breakeven/?driver_id=...&period=today&expenses=1000
func (h *Handler) GetReport(c *gin.Context) {
	driverID, ok := common.ParseUUIDQuery(c, "driver_id", "driver_id", true)
	if !ok {
		return
	}
	expenses, ok := common.ParseDecimalQuery(c, "expenses", decimal.Zero)
	if !ok {
		return
	}

	report, err := h.service.Report(c.Request.Context(), ReportRequest{
		DriverID:      driverID.String(),
		Period:        periods.ParsePeriod(c.Query("period")),
		Expenses:      expenses,
		BucketTZ:      c.Query("bucket_tz"),
		DisplayTZ:     c.Query("display_tz"),
		StatusIn:      splitList(c.Query("status_in")),
		StatusExclude: splitList(c.Query("status_exclude")),
		Debug:         truthy(c.Query("debug"), false),
	})
	if common.HandleServiceError(c, err, "failed to compute breakeven") {
		return
	}
	common.SuccessResponse(c, report)
}

// GetHistory returns a driver's past snapshots
// GET /api/breakeven/history?driver_id=...&period_type=daily&limit=30&exclude_current=1
func (h *Handler) GetHistory(c *gin.Context) {
	driverID, ok := common.ParseUUIDQuery(c, "driver_id", "driver_id", true)
	if !ok {
		return
	}

	periodType := periods.Daily
	if raw := c.Query("period_type"); raw != "" {
		pt, valid := periods.ParsePeriodType(raw)
		if !valid {
			common.ErrorResponse(c, http.StatusBadRequest, "period_type must be one of daily, weekly, monthly")
			return
		}
		periodType = pt
	}

	history, err := h.service.History(c.Request.Context(), HistoryRequest{
		DriverID:       driverID.String(),
		PeriodType:     periodType,
		Limit:          common.ParseIntQuery(c, "limit", defaultHistory, 1, maxHistory),
		ExcludeCurrent: truthy(c.Query("exclude_current"), true),
	})
	if common.HandleServiceError(c, err, "failed to load breakeven history") {
		return
	}
	common.SuccessResponse(c, history)
}

// RunSnapshot writes snapshots for every period closing today
// POST /api/breakeven/snapshot
func (h *Handler) RunSnapshot(c *gin.Context) {
	var req SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.DriverID = strings.TrimSpace(req.DriverID)
	if req.DriverID != "" {
		if _, err := uuid.Parse(req.DriverID); err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid driver_id")
			return
		}
	}

	results := h.service.Snapshot(c.Request.Context(), req.DriverID)

	entry := audit.FromRequest(c, audit.ActionSnapshotRun, TableHistory, req.DriverID)
	entry.NewData = resultsAuditData(results)
	h.audit.Record(c.Request.Context(), entry)

	common.SuccessResponse(c, results)
}

func resultsAuditData(results []JobResult) map[string]interface{} {
	out := make(map[string]interface{}, len(results))
	for _, r := range results {
		if r.Error != "" {
			out[string(r.PeriodType)] = map[string]interface{}{"error": r.Error}
			continue
		}
		out[string(r.PeriodType)] = map[string]interface{}{"count": r.Count}
	}
	return out
}

// RegisterRoutes registers breakeven routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	breakeven := r.Group("/api/breakeven")
	{
		breakeven.GET("/", h.GetReport)
		breakeven.GET("/history", h.GetHistory)
		breakeven.POST("/snapshot", middleware.CronSecret(h.cronSecret), h.RunSnapshot)
	}
}
