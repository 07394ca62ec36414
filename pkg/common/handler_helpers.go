package common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HandleServiceError writes the response for a service error and reports
// whether it did. AppErrors keep their status; anything else is logged and
// answered with a 500 carrying fallbackMessage.
//
//	result, err := h.service.Report(ctx, req)
//	if common.HandleServiceError(c, err, "failed to compute breakeven") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	if appErr, ok := AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), appErr.Message, zap.Error(err))
		}
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
	ErrorResponse(c, http.StatusInternalServerError, fallbackMessage)
	return true
}

// ParseUUIDParam parses a UUID from a URL parameter, answering 400 on failure.
func ParseUUIDParam(c *gin.Context, paramName, displayName string) (uuid.UUID, bool) {
	paramValue := c.Param(paramName)
	if paramValue == "" {
		ErrorResponse(c, http.StatusBadRequest, displayName+" is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(paramValue)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+displayName)
		return uuid.Nil, false
	}
	return id, true
}

// ParseUUIDQuery parses a UUID from a query parameter. An absent optional
// parameter yields uuid.Nil and true.
func ParseUUIDQuery(c *gin.Context, paramName, displayName string, required bool) (uuid.UUID, bool) {
	paramValue := c.Query(paramName)
	if paramValue == "" {
		if required {
			ErrorResponse(c, http.StatusBadRequest, displayName+" is required")
			return uuid.Nil, false
		}
		return uuid.Nil, true
	}

	id, err := uuid.Parse(paramValue)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+displayName)
		return uuid.Nil, false
	}
	return id, true
}

// ParseDecimalQuery parses a non-negative decimal query parameter, returning
// def when it is absent.
func ParseDecimalQuery(c *gin.Context, paramName string, def decimal.Decimal) (decimal.Decimal, bool) {
	raw := c.Query(paramName)
	if raw == "" {
		return def, true
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+paramName)
		return decimal.Zero, false
	}
	return value, true
}

// ParseIntQuery parses an integer query parameter and clamps it to [min, max].
// Absent or malformed values yield def.
func ParseIntQuery(c *gin.Context, paramName string, def, min, max int) int {
	value, err := strconv.Atoi(c.Query(paramName))
	if err != nil {
		value = def
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}

// BindJSON binds the request body, answering 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
