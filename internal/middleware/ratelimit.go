package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/routeflow/routeflow-api/internal/logger"
)

// RateLimiter applies a token-bucket limit per client. Clients are
// identified by API key when present, falling back to source IP.
type RateLimiter struct {
	limiters sync.Map
	rate     float64
	burst    int
}

// limiterEntry pairs a client's bucket with its last touch. lastAccess is
// unix nanos, written by request goroutines and read by the cleanup loop.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:  requestsPerSecond,
		burst: burst,
	}
	go rl.cleanupLoop()
	return rl
}

// cleanupLoop drops per-client buckets idle for ten minutes so the map
// does not grow with every IP ever seen.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
		rl.limiters.Range(func(key, value interface{}) bool {
			if entry, ok := value.(*limiterEntry); ok && entry.lastAccess.Load() < cutoff {
				rl.limiters.Delete(key)
			}
			return true
		})
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	if val, ok := rl.limiters.Load(key); ok {
		entry := val.(*limiterEntry)
		entry.lastAccess.Store(now)
		return entry.limiter
	}

	entry := &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
	}
	entry.lastAccess.Store(now)
	actual, loaded := rl.limiters.LoadOrStore(key, entry)
	winner := actual.(*limiterEntry)
	if loaded {
		winner.lastAccess.Store(now)
	}
	return winner.limiter
}

func clientIdentifier(c *gin.Context) string {
	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		if len(apiKey) > 8 {
			apiKey = apiKey[:8]
		}
		return "api:" + apiKey
	}
	if forwardedFor := c.GetHeader("X-Forwarded-For"); forwardedFor != "" {
		return "ip:" + forwardedFor
	}
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// Middleware enforces the limit, answering 429 with Retry-After when a
// client's bucket is empty. Health and metrics endpoints are exempt.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}

		clientID := clientIdentifier(c)
		limiter := rl.limiterFor(clientID)

		if !limiter.Allow() {
			logger.Log.Warn("rate limit exceeded",
				zap.String("client_id", clientID),
				zap.String("path", path),
				zap.String("method", c.Request.Method))

			c.Header("X-RateLimit-Limit", fmt.Sprintf("%.0f", rl.rate))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}
