// Package ratelimit throttles submissions per client with a fixed-window
// counter kept in redis.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
	"form-relay/internal/common/metrics"
)

const keyPrefix = "relay:ratelimit"

type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

type Limiter struct {
	client   redis.Cmdable
	requests int64
	window   time.Duration
	logger   logger.Logger
	now      func() time.Time
}

func NewLimiter(client redis.Cmdable, requests int, window time.Duration, log logger.Logger) *Limiter {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Limiter{
		client:   client,
		requests: int64(requests),
		window:   window,
		logger:   log,
		now:      time.Now,
	}
}

// Allow counts one request for key in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	windowEnd := time.Unix(0, (slot+1)*int64(l.window))
	redisKey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, slot)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate limit counter: %w", err)
	}

	count := incr.Val()
	if count > l.requests {
		return Decision{Allowed: false, Count: count, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Count: count}, nil
}

// Middleware rejects over-limit clients with 429. Redis failures let the
// request through.
func (l *Limiter) Middleware(errHandler *relayerrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			decision, err := l.Allow(r.Context(), ip)
			if err != nil {
				logger.FromContext(r.Context(), l.logger).Warn("Rate limiter unavailable, allowing request", map[string]interface{}{
					"clientIp": ip,
					"error":    err,
				})
			}
			if !decision.Allowed {
				metrics.RateLimited.Inc()
				errHandler.HandleHTTPError(w, r, relayerrors.NewRateLimitedError(decision.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
