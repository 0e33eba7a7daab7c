package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/provider"
)

// ErrorResponse is the standard error body for every endpoint.
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SuccessResponse is the standard body for message-only replies.
type SuccessResponse struct {
	Message string `json:"message"`
}

// sendError logs and answers with the standard error body.
func sendError(c *gin.Context, statusCode int, message string, err error) {
	correlationID := ""
	if id, exists := c.Get("correlationID"); exists {
		correlationID, _ = id.(string)
	}

	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("correlation_id", correlationID))

	c.JSON(statusCode, ErrorResponse{
		Error:         message,
		CorrelationID: correlationID,
	})
}

func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// handleProviderError maps provider failures onto HTTP status codes.
func handleProviderError(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		sendError(c, http.StatusNotFound, notFoundMsg, err)
	case errors.Is(err, provider.ErrInsufficientBalance):
		sendError(c, http.StatusUnprocessableEntity, "insufficient wallet balance", err)
	case errors.Is(err, provider.ErrValidation):
		sendError(c, http.StatusBadRequest, "invalid provider request", err)
	default:
		sendError(c, http.StatusInternalServerError, "internal server error", err)
	}
}

// IsAddressValid checks the 0x-prefixed 20-byte hex shape of an EVM
// address.
func IsAddressValid(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, c := range address[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
