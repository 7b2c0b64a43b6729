package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck probes a single dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthOption configures the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe for the readiness endpoint.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandler) {
		if name == "" || check == nil {
			return
		}
		h.checks = append(h.checks, namedCheck{name: name, check: check})
	}
}

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []namedCheck
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Status reports liveness; it never touches dependencies.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: time.Now().UTC(),
	})
}

// Readiness probes registered dependencies and reports per-check results.
// Any failing check yields 503.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	results := make(map[string]string, len(h.checks))

	for _, nc := range h.checks {
		if err := nc.check(ctx); err != nil {
			results[nc.name] = err.Error()
			status = "unavailable"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		results[nc.name] = "ok"
	}

	c.JSON(httpStatus, ReadyResponse{
		Status:    status,
		Checks:    results,
		Timestamp: time.Now().UTC(),
	})
}
