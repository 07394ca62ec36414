package earnings

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/internal/periods"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
)

// Reports is the service surface the handler serves.
type Reports interface {
	GetTotals(ctx context.Context) *Totals
	GetDriverEarnings(ctx context.Context, driverID string, r DateRange) (*DriverEarnings, error)
	GetDriverSummaries(ctx context.Context, r DateRange) ([]DriverSummary, error)
	GetPackageRevenue(ctx context.Context, limit int) ([]Group, error)
	GetSalesReport(ctx context.Context, g Granularity, r DateRange) (*SalesReport, error)
	GetHourlyIncome(ctx context.Context) *HourlyIncome
	GetDashboardMetrics(ctx context.Context, start, end string) *DashboardMetrics
}

// Handler handles HTTP requests for earnings reports
type Handler struct {
	service Reports
}

// NewHandler creates a new earnings handler
func NewHandler(service Reports) *Handler {
	return &Handler{service: service}
}

// parseDateRange reads optional YYYY-MM-DD bounds, answering 400 when one is malformed.
func parseDateRange(c *gin.Context, fromParam, toParam string) (DateRange, bool) {
	var r DateRange
	for _, p := range []struct {
		name string
		dst  **periods.Date
	}{{fromParam, &r.From}, {toParam, &r.To}} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		d, err := periods.ParseDate(raw)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid "+p.name+", expected YYYY-MM-DD")
			return DateRange{}, false
		}
		*p.dst = &d
	}
	return r, true
}

func degradedMeta(degraded bool) *common.Meta {
	if !degraded {
		return nil
	}
	return &common.Meta{Degraded: true}
}

// ========================================
// OVERVIEW
// ========================================

// GetTotals returns gross/admin/driver totals and recent payouts
// GET /api/earnings/
func (h *Handler) GetTotals(c *gin.Context) {
	totals := h.service.GetTotals(c.Request.Context())
	common.SuccessResponseWithMeta(c, totals, degradedMeta(totals.Degraded))
}

// GetDashboardMetrics returns the dashboard headline numbers
// GET /accounts/api/dashboard-metrics?start=2025-01-01&end=2025-01-31
func (h *Handler) GetDashboardMetrics(c *gin.Context) {
	metrics := h.service.GetDashboardMetrics(c.Request.Context(), c.Query("start"), c.Query("end"))
	common.SuccessResponseWithMeta(c, metrics, degradedMeta(metrics.Degraded))
}

// GetHourlyIncome returns today's income per local hour
// GET /api/earnings/hourly
func (h *Handler) GetHourlyIncome(c *gin.Context) {
	hourly := h.service.GetHourlyIncome(c.Request.Context())
	common.SuccessResponseWithMeta(c, hourly, degradedMeta(hourly.Degraded))
}

// ========================================
// DRIVERS & PACKAGES
// ========================================

// GetDriverEarnings returns one driver's split earnings and statistics
// GET /api/earnings/driver?driver_id=...&date_from=&date_to=
func (h *Handler) GetDriverEarnings(c *gin.Context) {
	driverID := strings.TrimSpace(c.Query("driver_id"))
	if driverID == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "driver_id is required")
		return
	}
	r, ok := parseDateRange(c, "date_from", "date_to")
	if !ok {
		return
	}

	result, err := h.service.GetDriverEarnings(c.Request.Context(), driverID, r)
	if common.HandleServiceError(c, err, "failed to get driver earnings") {
		return
	}
	common.SuccessResponse(c, result)
}

// GetDriverSummaries returns every driver's totals
// GET /api/earnings/drivers?date_from=&date_to=
func (h *Handler) GetDriverSummaries(c *gin.Context) {
	r, ok := parseDateRange(c, "date_from", "date_to")
	if !ok {
		return
	}

	drivers, err := h.service.GetDriverSummaries(c.Request.Context(), r)
	if common.HandleServiceError(c, err, "failed to get driver summaries") {
		return
	}
	common.SuccessResponseWithMeta(c, drivers, &common.Meta{Total: int64(len(drivers))})
}

// GetPackageRevenue returns revenue per tour package
// GET /api/earnings/packages?limit=10
func (h *Handler) GetPackageRevenue(c *gin.Context) {
	limit := common.ParseIntQuery(c, "limit", 10, 1, 100)

	packages, err := h.service.GetPackageRevenue(c.Request.Context(), limit)
	if common.HandleServiceError(c, err, "failed to get package revenue") {
		return
	}
	common.SuccessResponseWithMeta(c, packages, &common.Meta{Limit: limit, Total: int64(len(packages))})
}

// GetSalesReport returns bucketed sales
// GET /api/earnings/sales-report?group_by=weekly&date_from=&date_to=
func (h *Handler) GetSalesReport(c *gin.Context) {
	r, ok := parseDateRange(c, "date_from", "date_to")
	if !ok {
		return
	}

	report, err := h.service.GetSalesReport(c.Request.Context(), ParseGranularity(c.Query("group_by")), r)
	if common.HandleServiceError(c, err, "failed to build sales report") {
		return
	}
	common.SuccessResponse(c, report)
}

// RegisterRoutes registers earnings report routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	reports := r.Group("/api/earnings")
	{
		reports.GET("/", h.GetTotals)
		reports.GET("/driver", h.GetDriverEarnings)
		reports.GET("/drivers", h.GetDriverSummaries)
		reports.GET("/packages", h.GetPackageRevenue)
		reports.GET("/sales-report", h.GetSalesReport)
		reports.GET("/hourly", h.GetHourlyIncome)
	}

	r.GET("/accounts/api/dashboard-metrics", h.GetDashboardMetrics)
}
