package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/logger"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	correlationIDKey    = "correlationID"
)

type contextKey string

const correlationIDContextKey contextKey = "correlationID"

// CorrelationID tags every request with a correlation id, minting one when
// the caller did not supply it, and echoes it back on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(correlationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)
		c.Request = c.Request.WithContext(
			WithCorrelationID(c.Request.Context(), correlationID))

		logger.Log.Info("request received",
			zap.String("correlation_id", correlationID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()))

		c.Next()
	}
}

// GetCorrelationID reads the request's correlation id from the gin context.
func GetCorrelationID(c *gin.Context) string {
	if id, ok := c.Get(correlationIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// WithCorrelationID stores the correlation id on a context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// LogWithCorrelationID returns the process logger annotated with the
// context's correlation id, if any.
func LogWithCorrelationID(ctx context.Context) *zap.Logger {
	if id, ok := ctx.Value(correlationIDContextKey).(string); ok && id != "" {
		return logger.Log.With(zap.String("correlation_id", id))
	}
	return logger.Log
}
