package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/transport/http/middleware"
	"github.com/dealsbasket/marketplace-auth/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
	now  func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (h *AuthHandler) WithClock(clock func() time.Time) *AuthHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.login)
	r.POST("/refresh-token", h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.POST("/verify-token", h.verify)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account disabled"},
		}, http.StatusInternalServerError, "authentication failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    h.secondsUntil(result.Tokens.AccessExpiresAt),
		User:         newUserSummary(result.User),
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	accessToken, expiresAt, err := h.auth.Tokens().RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRefreshDisabled, Status: http.StatusForbidden, Message: "token refresh is disabled"},
			{Err: usecase.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrTokenKindMismatch, Status: http.StatusUnauthorized, Message: "refresh token required"},
			{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "refresh token revoked"},
			{Err: usecase.ErrMalformedToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusUnauthorized, Message: "account no longer exists"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, TokenRefreshResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   h.secondsUntil(expiresAt),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	accessToken, ok := middleware.CurrentAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
			return
		}
	}

	if err := h.auth.Logout(c.Request.Context(), accessToken, req.RefreshToken); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrMalformedToken, Status: http.StatusBadRequest, Message: "invalid refresh token"},
		}, http.StatusInternalServerError, "failed to revoke tokens")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// verify reports whether a token is currently usable. Access tokens are the
// common case; a refresh token is accepted and reported with its kind.
func (h *AuthHandler) verify(c *gin.Context) {
	var req TokenVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	payload, err := h.auth.Tokens().Verify(c.Request.Context(), req.Token, domain.TokenKindAccess)
	if errors.Is(err, usecase.ErrTokenKindMismatch) {
		payload, err = h.auth.Tokens().Verify(c.Request.Context(), req.Token, domain.TokenKindRefresh)
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, TokenVerifyResponse{
			Valid:  false,
			Reason: verifyFailureReason(err),
		})
		return
	}

	expiresAt := payload.ExpiresAt
	c.JSON(http.StatusOK, TokenVerifyResponse{
		Valid:     true,
		UserID:    payload.UserID,
		Username:  payload.Username,
		Role:      payload.Role,
		TokenKind: string(payload.Kind),
		ExpiresAt: &expiresAt,
	})
}

func (h *AuthHandler) secondsUntil(expiresAt time.Time) int {
	remaining := expiresAt.Sub(h.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds())
}

func verifyFailureReason(err error) string {
	switch {
	case errors.Is(err, usecase.ErrExpiredToken):
		return "expired"
	case errors.Is(err, usecase.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, usecase.ErrMalformedToken):
		return "malformed"
	default:
		return "invalid"
	}
}
