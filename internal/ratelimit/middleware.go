package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageFunc renders the body message of a 429 response.
type MessageFunc func(c *gin.Context, retryAfter int) string

// IPRateLimit limits requests per client IP. Limiter failures let the
// request through so an unavailable Redis never takes the API down.
func IPRateLimit(limiter Limiter, logger *zap.Logger, message MessageFunc) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unable to determine client address"})
			return
		}

		result, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			msg := "rate limit exceeded"
			if message != nil {
				msg = message(c, retryAfter)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       msg,
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
