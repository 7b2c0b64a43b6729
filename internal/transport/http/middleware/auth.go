package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth resolves the Authorization header to an active user, aborting
// the request when no valid access token is presented. Disabled accounts are
// rejected with 403 so the client can distinguish them from a stale token.
func RequireAuth(auth *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, token, err := auth.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			abortAuthError(c, err)
			return
		}

		c.Set(UserKey, user)
		c.Set(AccessTokenKey, token)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = user.ID
		}

		c.Next()
	}
}

// RequireRole checks that the authenticated user holds one of the given roles.
// It must run after RequireAuth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient permissions"))
	}
}

// CurrentUser retrieves the authenticated user from context (helper for handlers)
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	raw, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}

	user, ok := raw.(*domain.User)
	if !ok || user == nil {
		return nil, false
	}

	return user, true
}

// CurrentAccessToken retrieves the raw access token the caller presented.
func CurrentAccessToken(c *gin.Context) (string, bool) {
	raw, exists := c.Get(AccessTokenKey)
	if !exists {
		return "", false
	}

	token, ok := raw.(string)
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

func abortAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrNoCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "missing or invalid authorization header"))
	case errors.Is(err, usecase.ErrExpiredToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "access token expired"))
	case errors.Is(err, usecase.ErrTokenRevoked):
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "access token revoked"))
	case errors.Is(err, usecase.ErrTokenKindMismatch):
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "access token required"))
	case errors.Is(err, usecase.ErrMalformedToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "invalid access token"))
	case errors.Is(err, usecase.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "account no longer exists"))
	case errors.Is(err, usecase.ErrAccountDisabled):
		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "account disabled"))
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			newErrorResponse(c, "authentication failed"))
	}
}
