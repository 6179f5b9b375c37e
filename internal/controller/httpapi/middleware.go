package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestLogger logs every request through zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// rateScript counts a hit and opens the window in the same round trip. A key
// left without a TTL gets one on its next hit. It returns {count, pttl}.
const rateScript = `
local n = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if n == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`

// rateStore is the part of the Redis client the limiter needs.
type rateStore interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RateLimiter counts requests per client IP in fixed Redis windows.
type RateLimiter struct {
	store  rateStore
	logger *zap.Logger
}

func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{store: client, logger: logger}
}

// Limit allows limit requests per window for each client IP. Redis failures let
// the request through.
func (rl *RateLimiter) Limit(keySuffix string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", keySuffix, c.ClientIP())

		res, err := rl.store.Eval(c, rateScript, []string{key}, window.Milliseconds()).Int64Slice()
		if err == nil && len(res) != 2 {
			err = fmt.Errorf("unexpected rate limit reply %v", res)
		}
		if err != nil {
			rl.logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		count, ttl := res[0], time.Duration(res[1])*time.Millisecond

		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"reason":      "rate_limited",
				"retry_after": fmt.Sprintf("%.0fs", ttl.Seconds()),
			})
			return
		}
		c.Next()
	}
}
