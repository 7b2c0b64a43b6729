package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID         int64       `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	IsVerified bool        `json:"is_verified"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         UserSummary `json:"user"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenRefreshResponse contains the access token issued by the refresh endpoint.
// The refresh token is not rotated, so only the access token is returned.
type TokenRefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// LogoutRequest optionally carries the refresh token to revoke alongside the
// presented access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenVerifyRequest holds a token for an explicit validity check.
type TokenVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenVerifyResponse reports the outcome of a token verification.
type TokenVerifyResponse struct {
	Valid     bool        `json:"valid"`
	Reason    string      `json:"reason,omitempty"`
	UserID    int64       `json:"user_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
	TokenKind string      `json:"token_kind,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newUserSummary converts a domain user to a summary suitable for API responses.
func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Role:       user.Role,
		IsVerified: user.IsVerified,
	}
}
