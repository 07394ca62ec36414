package notifications

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/tartanilla-earnings/pkg/common"
)

// StatusReader exposes dispatched job status.
type StatusReader interface {
	Status(id string) (JobStatus, bool)
}

type Handler struct {
	jobs StatusReader
}

func NewHandler(jobs StatusReader) *Handler {
	return &Handler{jobs: jobs}
}

// GetJob returns a dispatched job's status
// GET /api/notifications/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "job id is required")
		return
	}

	status, ok := h.jobs.Status(id)
	if !ok {
		common.ErrorResponse(c, http.StatusNotFound, "job not found")
		return
	}
	common.SuccessResponse(c, status)
}

// RegisterRoutes registers notification routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/notifications/jobs/:id", h.GetJob)
}
