package idempotency

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/logger"
)

const (
	// HeaderKey is the request header carrying the client's idempotency key.
	HeaderKey = "Idempotency-Key"

	// HeaderReplay marks a response that was served from a stored record
	// rather than a fresh execution.
	HeaderReplay = "Idempotent-Replay"

	// DefaultTTL bounds how long a completed record is replayable.
	DefaultTTL = 24 * time.Hour
)

// bodyCaptureWriter tees the response body so the middleware can persist it
// after the handler runs.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware enforces exactly-once execution for mutating endpoints. Every
// request must carry an Idempotency-Key header. The first request claims
// the key and executes; a duplicate arriving while the first is still
// executing gets 409; a duplicate after completion gets the stored response
// byte for byte, flagged with the Idempotent-Replay header.
func Middleware(store Store, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing Idempotency-Key header",
			})
			return
		}

		existing, claimed, err := store.Claim(c.Request.Context(), key, ttl)
		if err != nil {
			logger.Log.Error("idempotency claim failed",
				zap.String("key", key),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "idempotency store unavailable",
			})
			return
		}

		if !claimed {
			if existing == nil || existing.Status == StatusPending {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error": "request with this idempotency key is still in progress",
				})
				return
			}
			c.Header(HeaderReplay, "true")
			c.Data(existing.StatusCode, "application/json", existing.Response)
			c.Abort()
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			// Server-side failures are not a durable outcome; release the
			// claim so the client's retry can execute.
			if err := store.Release(c.Request.Context(), key); err != nil {
				logger.Log.Error("failed to release idempotency key",
					zap.String("key", key),
					zap.Error(err))
			}
			return
		}

		if err := store.Complete(c.Request.Context(), key, status, writer.body.Bytes()); err != nil {
			logger.Log.Error("failed to complete idempotency record",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
