package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/core/port"
	"github.com/dealsbasket/marketplace-auth/internal/infra/logger"
	"github.com/dealsbasket/marketplace-auth/internal/infra/security"
	"github.com/dealsbasket/marketplace-auth/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account exists but has been disabled.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrNoCredentials indicates the request carried no bearer token. The
	// caller decides whether anonymous access is acceptable.
	ErrNoCredentials = errors.New("no credentials presented")
)

// AuthService is the request-level adapter between raw Authorization headers
// and resolved marketplace identities, plus the credential login flow.
type AuthService struct {
	tokens *TokenService
	users  port.UserStore
	events port.EventPublisher
	logger *zap.Logger
}

// LoginInput carries the credentials and request metadata for a login attempt.
type LoginInput struct {
	Identifier string
	Password   string
	IP         string
	UserAgent  string
}

// LoginResult bundles the issued tokens with the authenticated user.
type LoginResult struct {
	User   domain.User
	Tokens domain.TokenPair
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(tokens *TokenService, users port.UserStore, log *zap.Logger) (*AuthService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{tokens: tokens, users: users, logger: log}, nil
}

// WithEventPublisher injects the publisher used for login events.
func (s *AuthService) WithEventPublisher(events port.EventPublisher) *AuthService {
	s.events = events
	return s
}

// Login validates credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.publishLoginFailed(ctx, input, "unknown identifier")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.publishLoginFailed(ctx, input, "wrong password")
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		s.publishLoginFailed(ctx, input, "account disabled")
		return LoginResult{}, ErrAccountDisabled
	}

	pair, err := s.tokens.IssueTokenPair(*user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token pair: %w", err)
	}

	s.logger.Info("login succeeded",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("client_ip", logger.MaskIP(input.IP)),
	)

	if s.events != nil {
		event := domain.LoginSucceededEvent{
			UserID:    user.ID,
			Username:  user.Username,
			Role:      user.Role,
			IP:        input.IP,
			UserAgent: input.UserAgent,
		}
		if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
			s.logger.Warn("publish login succeeded event failed", zap.Error(err))
		}
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return LoginResult{User: sanitized, Tokens: pair}, nil
}

// Authenticate resolves the identity behind an Authorization header.
//
// A missing header, or one that does not carry a Bearer credential, yields
// ErrNoCredentials so other auth schemes can coexist; it is not treated as a
// verification failure. Token failures from the token layer propagate as-is.
func (s *AuthService) Authenticate(ctx context.Context, authorizationHeader string) (*domain.User, string, error) {
	token, ok := ExtractBearerToken(authorizationHeader)
	if !ok {
		return nil, "", ErrNoCredentials
	}

	payload, err := s.tokens.Verify(ctx, token, domain.TokenKindAccess)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return nil, "", ErrAccountDisabled
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return &sanitized, token, nil
}

// Logout revokes the presented access token and, when supplied, the refresh
// token. Both revocations are idempotent and succeed on expired tokens.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, accessToken, "user_logout"); err != nil {
		return err
	}

	if strings.TrimSpace(refreshToken) != "" {
		if err := s.tokens.Revoke(ctx, refreshToken, "user_logout"); err != nil {
			return err
		}
	}

	return nil
}

// Tokens exposes the underlying token service for refresh and verify endpoints.
func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

// ExtractBearerToken parses an Authorization header value. Only the
// "Bearer <token>" form is recognised; anything else reports no credential.
func ExtractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func (s *AuthService) publishLoginFailed(ctx context.Context, input LoginInput, reason string) {
	s.logger.Warn("login failed",
		zap.String("identifier", logger.MaskEmail(input.Identifier)),
		zap.String("reason", reason),
		zap.String("client_ip", logger.MaskIP(input.IP)),
	)

	if s.events == nil {
		return
	}

	event := domain.LoginFailedEvent{
		Identifier: input.Identifier,
		Reason:     reason,
		IP:         input.IP,
		UserAgent:  input.UserAgent,
	}
	if err := s.events.PublishLoginFailed(ctx, event); err != nil {
		s.logger.Warn("publish login failed event failed", zap.Error(err))
	}
}
