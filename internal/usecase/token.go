package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/config"
	"github.com/dealsbasket/marketplace-auth/internal/infra/security"
	"github.com/dealsbasket/marketplace-auth/internal/repository"
)

var (
	// ErrExpiredToken indicates the token's exp claim has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrTokenKindMismatch indicates an access token was presented where a
	// refresh token is required, or vice versa.
	ErrTokenKindMismatch = errors.New("unexpected token kind")
	// ErrTokenRevoked indicates the token was blacklisted ahead of expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrMalformedToken indicates the token is structurally invalid or its
	// signature does not verify.
	ErrMalformedToken = errors.New("malformed token")
	// ErrRefreshDisabled indicates refresh-token exchange is administratively off.
	ErrRefreshDisabled = errors.New("token refresh disabled")
	// ErrUserNotFound indicates the token subject no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// TokenService owns issuance policy and orchestrates the codec and blacklist.
// It is the only component that knows token lifetimes.
type TokenService struct {
	cfg       config.JWTSettings
	codec     *security.Codec
	blacklist port.RevocationStore
	users     port.UserStore
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(cfg config.JWTSettings, codec *security.Codec, blacklist port.RevocationStore, users port.UserStore, logger *zap.Logger) (*TokenService, error) {
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if blacklist == nil {
		return nil, fmt.Errorf("revocation store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenService{
		cfg:       cfg,
		codec:     codec,
		blacklist: blacklist,
		users:     users,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithEventPublisher injects the publisher used for revocation events.
func (s *TokenService) WithEventPublisher(events port.EventPublisher) *TokenService {
	s.events = events
	return s
}

// WithClock overrides the internal clock for deterministic testing.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// IssueTokenPair issues an access and refresh token for the user. The access
// token embeds username, email and role so downstream authorization needs no
// second lookup; the refresh token carries only the subject id.
func (s *TokenService) IssueTokenPair(user domain.User) (domain.TokenPair, error) {
	if user.ID <= 0 {
		return domain.TokenPair{}, fmt.Errorf("user id is required")
	}

	now := s.now()

	accessTTL := s.cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 60 * time.Minute
	}
	refreshTTL := s.cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	accessPayload := domain.TokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		Kind:      domain.TokenKindAccess,
		IssuedAt:  now,
		ExpiresAt: now.Add(accessTTL),
	}
	refreshPayload := domain.TokenPayload{
		UserID:    user.ID,
		Kind:      domain.TokenKindRefresh,
		IssuedAt:  now,
		ExpiresAt: now.Add(refreshTTL),
	}

	accessToken, err := s.codec.Encode(accessPayload)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("encode access token: %w", err)
	}
	refreshToken, err := s.codec.Encode(refreshPayload)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("encode refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessPayload.ExpiresAt,
		RefreshExpiresAt: refreshPayload.ExpiresAt,
	}, nil
}

// Verify decodes the token and returns its trusted payload. Signature and
// expiry checks run first, then the kind check, then the blacklist lookup;
// an already-expired token never consumes a blacklist read.
func (s *TokenService) Verify(ctx context.Context, token string, expectedKind domain.TokenKind) (domain.TokenPayload, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		return domain.TokenPayload{}, mapCodecError(err)
	}

	if payload.Kind != expectedKind {
		return domain.TokenPayload{}, ErrTokenKindMismatch
	}

	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return domain.TokenPayload{}, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return domain.TokenPayload{}, ErrTokenRevoked
	}

	return payload, nil
}

// RefreshAccessToken exchanges a valid refresh token for a fresh access
// token. The refresh token itself is not rotated; it stays valid for its
// original lifetime.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if !s.cfg.AllowRefresh {
		return "", time.Time{}, ErrRefreshDisabled
	}

	payload, err := s.Verify(ctx, refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return "", time.Time{}, err
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrUserNotFound
		}
		return "", time.Time{}, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now()
	accessTTL := s.cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 60 * time.Minute
	}

	accessPayload := domain.TokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		Kind:      domain.TokenKindAccess,
		IssuedAt:  now,
		ExpiresAt: now.Add(accessTTL),
	}

	accessToken, err := s.codec.Encode(accessPayload)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode access token: %w", err)
	}

	return accessToken, accessPayload.ExpiresAt, nil
}

// Revoke blacklists the token under its original expiry. Expiry is ignored
// during decode so an already-expired token can still be revoked, keeping
// logout idempotent.
func (s *TokenService) Revoke(ctx context.Context, token string, reason string) error {
	payload, err := s.codec.DecodeIgnoringExpiry(token)
	if err != nil {
		return mapCodecError(err)
	}

	if err := s.blacklist.Revoke(ctx, token, payload.ExpiresAt); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	if s.events != nil {
		event := domain.TokenRevokedEvent{
			UserID: payload.UserID,
			Kind:   payload.Kind,
			Reason: reason,
			At:     s.now(),
		}
		if err := s.events.PublishTokenRevoked(ctx, event); err != nil {
			s.logger.Warn("publish token revoked event failed", zap.Error(err))
		}
	}

	return nil
}

func mapCodecError(err error) error {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, security.ErrSignatureInvalid), errors.Is(err, security.ErrMalformedToken):
		return ErrMalformedToken
	default:
		return ErrMalformedToken
	}
}
