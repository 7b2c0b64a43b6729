package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	appLogger "github.com/dealsbasket/marketplace-auth/internal/infra/logger"
)

const (
	failedLoginThreshold = 5
	failedLoginWindow    = time.Hour
)

// AuthEventLogger records the outcome of authentication-sensitive requests
// and tracks repeated login failures per client IP. Crossing the failure
// threshold raises the log severity; nothing is blocked, the signal feeds
// operators and downstream alerting only.
type AuthEventLogger struct {
	logger   *zap.Logger
	counters port.CounterStore
	paths    map[string]string
}

// NewAuthEventLogger constructs the logger middleware helper. The counter
// store is optional; without it failure tracking is skipped.
func NewAuthEventLogger(log *zap.Logger, counters port.CounterStore) *AuthEventLogger {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthEventLogger{
		logger:   log,
		counters: counters,
		paths: map[string]string{
			"/api/auth/login":         "login",
			"/api/auth/register":      "register",
			"/api/auth/refresh-token": "token_refresh",
			"/api/auth/logout":        "logout",
			"/api/auth/verify-token":  "token_verify",
		},
	}
}

// Handler returns the Gin middleware.
func (l *AuthEventLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		event, watched := l.paths[c.Request.URL.Path]
		if !watched {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("event", event),
			zap.String("method", c.Request.Method),
			zap.Int("status", status),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("trace_id", GetTraceID(c)),
		}

		switch {
		case status >= http.StatusOK && status < http.StatusMultipleChoices:
			l.logger.Info("auth request succeeded", fields...)
		case status >= http.StatusBadRequest && status <= http.StatusForbidden:
			// Only a 401 is a failed credential attempt. Malformed bodies
			// and forbidden accounts must not feed the failure counter.
			if event == "login" && status == http.StatusUnauthorized {
				l.trackFailedLogin(c, fields)
				return
			}
			l.logger.Warn("auth request rejected", fields...)
		default:
			l.logger.Error("auth request errored", fields...)
		}
	}
}

// trackFailedLogin bumps the per-IP failure counter. Counter errors are
// swallowed after a log line; observability must not fail the request.
func (l *AuthEventLogger) trackFailedLogin(c *gin.Context, fields []zap.Field) {
	if l.counters == nil {
		l.logger.Warn("login failed", fields...)
		return
	}

	key := fmt.Sprintf("failed_login:%s", c.ClientIP())
	count, _, err := l.counters.Increment(c.Request.Context(), key, failedLoginWindow)
	if err != nil {
		l.logger.Warn("failed login tracking unavailable", zap.Error(err))
		l.logger.Warn("login failed", fields...)
		return
	}

	fields = append(fields, zap.Int("recent_failures", count))

	if count >= failedLoginThreshold {
		l.logger.Error("repeated login failures from client", fields...)
		return
	}

	l.logger.Warn("login failed", fields...)
}
