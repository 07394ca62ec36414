package settings

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/internal/audit"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/richxcame/tartanilla-earnings/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PercentageStore is the part of Store the handler uses.
type PercentageStore interface {
	Percent() decimal.Decimal
	Update(ctx context.Context, pct decimal.Decimal) error
}

// PayoutRecalculator re-splits pending payouts after a percentage change.
type PayoutRecalculator interface {
	RecalculatePending(ctx context.Context, fraction decimal.Decimal) (int, error)
}

// Handler serves the organization percentage endpoints.
type Handler struct {
	store   PercentageStore
	payouts PayoutRecalculator
	audit   audit.Recorder
}

func NewHandler(store PercentageStore, payouts PayoutRecalculator, recorder audit.Recorder) *Handler {
	return &Handler{store: store, payouts: payouts, audit: recorder}
}

// UpdatePercentageRequest carries the new admin percent. Numbers and numeric strings are accepted.
type UpdatePercentageRequest struct {
	Percentage *decimal.Decimal `json:"percentage" validate:"omitempty,gte=0,lte=100"`
}

// PercentageResponse reports the split in percent.
type PercentageResponse struct {
	OrganizationPercentage decimal.Decimal `json:"organization_percentage"`
	DriverPercentage       decimal.Decimal `json:"driver_percentage"`
	RecalculatedPayouts    *int            `json:"recalculated_payouts,omitempty"`
}

func newPercentageResponse(pct decimal.Decimal) PercentageResponse {
	return PercentageResponse{OrganizationPercentage: pct, DriverPercentage: hundred.Sub(pct)}
}

// GetPercentage returns the current split
// GET /api/earnings/percentage
func (h *Handler) GetPercentage(c *gin.Context) {
	common.SuccessResponse(c, newPercentageResponse(h.store.Percent()))
}

// UpdatePercentage stores a new organization percentage and re-splits pending payouts
// POST /api/earnings/update-percentage
func (h *Handler) UpdatePercentage(c *gin.Context) {
	var req UpdatePercentageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid percentage value")
		return
	}
	if req.Percentage == nil {
		common.ErrorResponse(c, http.StatusBadRequest, "percentage field is required")
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, ErrPercentageRange.Error())
		return
	}

	ctx := c.Request.Context()
	previous := h.store.Percent()
	pct := *req.Percentage

	if err := h.store.Update(ctx, pct); err != nil {
		if errors.Is(err, ErrPercentageRange) {
			common.ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		common.HandleServiceError(c, common.NewBadGatewayError("failed to update organization percentage", err), "failed to update organization percentage")
		return
	}

	entry := audit.FromRequest(c, audit.ActionUpdateOrgPercentage, TableSystemSettings, KeyOrganizationPercentage)
	entry.OldData = map[string]interface{}{"percentage": previous.String()}
	entry.NewData = map[string]interface{}{"percentage": pct.String()}
	h.audit.Record(ctx, entry)

	resp := newPercentageResponse(pct)
	if h.payouts != nil {
		changed, err := h.payouts.RecalculatePending(ctx, pct.Div(hundred))
		if err != nil {
			logger.WarnContext(ctx, "pending payout recalculation failed", zap.Error(err))
		} else {
			resp.RecalculatedPayouts = &changed
		}
	}

	common.SuccessResponse(c, resp)
}

// RegisterRoutes registers the percentage routes on the earnings group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/percentage", h.GetPercentage)
	rg.POST("/update-percentage", h.UpdatePercentage)
}
