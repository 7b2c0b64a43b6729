package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/config"
)

const (
	rateLimitProblemType  = "https://auth.dealsbasket.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// RateLimitRule configures a fixed-window limit for a named endpoint.
type RateLimitRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter enforces fixed-window limits per endpoint and client IP. The
// window for a key opens on the first request and never slides; once the
// limit is hit every further request is rejected until the window lapses.
type RateLimiter struct {
	store  port.CounterStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.CounterStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// PathRules maps request paths to their configured limits. Registration is
// served by the user-management service, but its path stays in the table so
// this instance throttles register traffic when deployed in front of it.
func PathRules(cfg config.RateLimitSettings) map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"/api/auth/login":         {Name: "login", Limit: cfg.LoginMaxAttempts, Window: cfg.LoginWindow},
		"/api/auth/refresh-token": {Name: "refresh", Limit: cfg.RefreshMaxAttempts, Window: cfg.RefreshWindow},
		"/api/auth/register":      {Name: "register", Limit: cfg.RegisterMaxAttempts, Window: cfg.RegisterWindow},
	}
}

// ByPath returns a middleware that applies the rule matching the request
// path, if any. Paths outside the table pass through untouched.
func (rl *RateLimiter) ByPath(rules map[string]RateLimitRule) gin.HandlerFunc {
	limits := make(map[string]gin.HandlerFunc, len(rules))
	for path, rule := range rules {
		limits[path] = rl.Limit(rule)
	}

	return func(c *gin.Context) {
		if handler, ok := limits[c.Request.URL.Path]; ok {
			handler(c)
			return
		}
		c.Next()
	}
}

// Limit returns a Gin middleware enforcing the provided rule, keyed by client
// IP. Store failures fail open: an unavailable counter backend must not take
// authentication down with it.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.store == nil || rule.Limit <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%s:%s", rule.Name, ip)
		now := rl.now()

		count, windowEnd, err := rl.store.Peek(ctx, key)
		if err != nil {
			rl.logger.Warn("rate limit check failed",
				zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		if count >= rule.Limit {
			// The window end is known unless the backend lost the entry
			// between the count and expiry reads; fall back to a full window.
			retryAfter := rule.Window
			if !windowEnd.IsZero() && windowEnd.After(now) {
				retryAfter = windowEnd.Sub(now)
			}
			rl.reject(c, rule, retryAfter, windowEnd)
			return
		}

		count, windowEnd, err = rl.store.Increment(ctx, key, rule.Window)
		if err != nil {
			rl.logger.Warn("rate limit increment failed",
				zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		remaining := rule.Limit - count
		if remaining < 0 {
			remaining = 0
		}

		headers := c.Writer.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))

		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, rule RateLimitRule, retryAfter time.Duration, windowEnd time.Time) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 0 {
		seconds = 0
	}

	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
	headers.Set("X-RateLimit-Remaining", "0")
	if !windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(windowEnd.Unix(), 10))
	}
	headers.Set("Retry-After", strconv.Itoa(seconds))

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	problem := ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, problem)
}
