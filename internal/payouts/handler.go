package payouts

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/internal/audit"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/validation"
)

const (
	defaultListLimit = 0
	historyLimit     = 50
	maxHistoryLimit  = 200
)

// Manager is the service surface the handler uses.
type Manager interface {
	Create(ctx context.Context, req CreateRequest) (*Payout, error)
	Release(ctx context.Context, id string, req ReleaseRequest) (*Release, error)
	Get(ctx context.Context, id string) (*Payout, error)
	List(ctx context.Context, status string, limit int) ([]Payout, error)
	PendingCount(ctx context.Context) (int64, error)
	History(ctx context.Context, driverID string, limit int) ([]Payout, error)
}

// Handler handles HTTP requests for payouts
type Handler struct {
	service Manager
	audit   audit.Recorder
}

// NewHandler creates a new payouts handler
func NewHandler(service Manager, recorder audit.Recorder) *Handler {
	return &Handler{service: service, audit: recorder}
}

// CreatePayout opens a pending payout for a driver
// POST /api/earnings/payouts
func (h *Handler) CreatePayout(c *gin.Context) {
	var req CreateRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	payout, err := h.service.Create(c.Request.Context(), req)
	if common.HandleServiceError(c, err, "failed to create payout") {
		return
	}

	entry := audit.FromRequest(c, audit.ActionPayoutCreated, TablePayouts, payout.ID)
	entry.NewData = auditData(payout)
	h.audit.Record(c.Request.Context(), entry)

	common.CreatedResponse(c, payout)
}

// ReleasePayout marks a pending payout as paid
// POST /api/earnings/payouts/:id/release
func (h *Handler) ReleasePayout(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	released, err := h.service.Release(c.Request.Context(), id.String(), req)
	if common.HandleServiceError(c, err, "failed to release payout") {
		return
	}

	entry := audit.FromRequest(c, audit.ActionPayoutReleased, TablePayouts, released.After.ID)
	entry.OldData = auditData(released.Before)
	entry.NewData = auditData(released.After)
	h.audit.Record(c.Request.Context(), entry)

	common.SuccessResponse(c, released.After)
}

// GetPayout returns one payout
// GET /api/earnings/payouts/:id
func (h *Handler) GetPayout(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "payout id")
	if !ok {
		return
	}

	payout, err := h.service.Get(c.Request.Context(), id.String())
	if common.HandleServiceError(c, err, "failed to get payout") {
		return
	}

	common.SuccessResponse(c, payout)
}

// GetPendingPayouts lists payouts waiting for release
// GET /api/earnings/payouts/pending
func (h *Handler) GetPendingPayouts(c *gin.Context) {
	h.list(c, StatusPending)
}

// GetReleasedPayouts lists released payouts, newest first
// GET /api/earnings/payouts/released
func (h *Handler) GetReleasedPayouts(c *gin.Context) {
	h.list(c, StatusReleased)
}

func (h *Handler) list(c *gin.Context, status string) {
	limit := common.ParseIntQuery(c, "limit", defaultListLimit, 0, maxHistoryLimit)

	rows, err := h.service.List(c.Request.Context(), status, limit)
	if common.HandleServiceError(c, err, "failed to list payouts") {
		return
	}

	common.SuccessResponseWithMeta(c, rows, &common.Meta{Limit: limit, Total: int64(len(rows))})
}

// GetPendingCount returns the number of pending payouts
// GET /api/earnings/payouts/pending-count
func (h *Handler) GetPendingCount(c *gin.Context) {
	n, err := h.service.PendingCount(c.Request.Context())
	if common.HandleServiceError(c, err, "failed to count pending payouts") {
		return
	}

	common.SuccessResponse(c, gin.H{"count": n})
}

// GetPayoutHistory returns a driver's payouts
// GET /api/earnings/payouts/history?driver_id=
func (h *Handler) GetPayoutHistory(c *gin.Context) {
	driverID, ok := common.ParseUUIDQuery(c, "driver_id", "driver_id", true)
	if !ok {
		return
	}
	limit := common.ParseIntQuery(c, "limit", historyLimit, 1, maxHistoryLimit)

	rows, err := h.service.History(c.Request.Context(), driverID.String(), limit)
	if common.HandleServiceError(c, err, "failed to load payout history") {
		return
	}

	common.SuccessResponseWithMeta(c, rows, &common.Meta{Limit: limit, Total: int64(len(rows))})
}

// RegisterRoutes registers payout routes on the earnings group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	payouts := rg.Group("/payouts")
	{
		payouts.POST("", h.CreatePayout)
		payouts.GET("/pending", h.GetPendingPayouts)
		payouts.GET("/released", h.GetReleasedPayouts)
		payouts.GET("/pending-count", h.GetPendingCount)
		payouts.GET("/history", h.GetPayoutHistory)
		payouts.GET("/:id", h.GetPayout)
		payouts.POST("/:id/release", h.ReleasePayout)
	}
}
