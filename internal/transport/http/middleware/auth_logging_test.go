package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dealsbasket/marketplace-auth/internal/infra/security"
)

func newAuthLoggingRouter(log *zap.Logger, counters *security.FixedWindowCounter, loginStatus int) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(EnrichContext())
	router.Use(NewAuthEventLogger(log, counters).Handler())
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.Status(loginStatus)
	})
	router.GET("/api/products/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuthEventLoggerLogsSuccess(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := newAuthLoggingRouter(zap.New(core), security.NewFixedWindowCounter(), http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:51000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	entries := logs.FilterMessage("auth request succeeded").All()
	if len(entries) != 1 {
		t.Fatalf("success log entries = %d, want 1", len(entries))
	}
	if entries[0].Level != zap.InfoLevel {
		t.Fatalf("level = %v, want info", entries[0].Level)
	}
}

func TestAuthEventLoggerIgnoresUnwatchedPaths(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := newAuthLoggingRouter(zap.New(core), security.NewFixedWindowCounter(), http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/products/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if n := logs.Len(); n != 0 {
		t.Fatalf("log entries = %d, want 0", n)
	}
}

func TestAuthEventLoggerEscalatesRepeatedFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	counters := security.NewFixedWindowCounter()
	router := newAuthLoggingRouter(zap.New(core), counters, http.StatusUnauthorized)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:51000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
	}

	warns := logs.FilterMessage("login failed").All()
	if len(warns) != 4 {
		t.Fatalf("warn entries = %d, want 4 before the threshold", len(warns))
	}

	escalated := logs.FilterMessage("repeated login failures from client").All()
	if len(escalated) != 2 {
		t.Fatalf("escalated entries = %d, want 2 at and past the threshold", len(escalated))
	}
	for _, entry := range escalated {
		if entry.Level != zap.ErrorLevel {
			t.Fatalf("escalated level = %v, want error", entry.Level)
		}
	}
}

func TestAuthEventLoggerIgnoresBadRequestsForFailureTracking(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	counters := security.NewFixedWindowCounter()
	router := newAuthLoggingRouter(zap.New(core), counters, http.StatusBadRequest)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:51000"
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	count, _, err := counters.Peek(context.Background(), "failed_login:192.0.2.1")
	if err != nil {
		t.Fatalf("Peek returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("failure counter = %d after 400 responses, want 0", count)
	}

	if n := len(logs.FilterMessage("login failed").All()); n != 0 {
		t.Fatalf("login failed entries = %d, want 0 for bad requests", n)
	}
	if n := len(logs.FilterMessage("repeated login failures from client").All()); n != 0 {
		t.Fatalf("escalated entries = %d, want 0 for bad requests", n)
	}
	if n := len(logs.FilterMessage("auth request rejected").All()); n != 6 {
		t.Fatalf("rejected entries = %d, want 6", n)
	}
}

func TestAuthEventLoggerFieldsAndErrorClassification(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := newAuthLoggingRouter(zap.New(core), security.NewFixedWindowCounter(), http.StatusInternalServerError)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:51000"
	req.Header.Set("User-Agent", "deals-app/2.4")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("auth request errored").All()
	if len(entries) != 1 {
		t.Fatalf("errored entries = %d, want 1", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel {
		t.Fatalf("level = %v, want error", entries[0].Level)
	}

	fields := entries[0].ContextMap()
	if got := fields["method"]; got != http.MethodPost {
		t.Fatalf("method field = %v, want POST", got)
	}
	if got := fields["user_agent"]; got != "deals-app/2.4" {
		t.Fatalf("user_agent field = %v, want deals-app/2.4", got)
	}
}

func TestAuthEventLoggerFailureWindowResets(t *testing.T) {
	start := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	now := start
	counters := security.NewFixedWindowCounter().WithClock(func() time.Time { return now })

	core, logs := observer.New(zap.InfoLevel)
	router := newAuthLoggingRouter(zap.New(core), counters, http.StatusUnauthorized)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:51000"
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if n := len(logs.FilterMessage("repeated login failures from client").All()); n != 1 {
		t.Fatalf("escalated entries = %d, want 1", n)
	}

	// After the window lapses the counter starts over, so the next failure
	// logs at warn again.
	now = start.Add(failedLoginWindow + time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:51000"
	router.ServeHTTP(httptest.NewRecorder(), req)

	if n := len(logs.FilterMessage("repeated login failures from client").All()); n != 1 {
		t.Fatalf("escalated entries after reset = %d, want still 1", n)
	}
}

func TestAuthEventLoggerNeverBlocksOnCounterFailure(t *testing.T) {
	router := gin.New()
	gin.SetMode(gin.TestMode)
	router.Use(EnrichContext())
	router.Use(NewAuthEventLogger(zaptest.NewLogger(t), failingCounterStore{}).Handler())
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.1:51000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want the handler's 401 untouched", rr.Code)
	}
}

type failingCounterStore struct{}

func (failingCounterStore) Peek(context.Context, string) (int, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}

func (failingCounterStore) Increment(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}
