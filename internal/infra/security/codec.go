package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
)

var (
	// ErrMalformedToken indicates the token is structurally invalid or carries
	// an unusable claim set.
	ErrMalformedToken = errors.New("codec: malformed token")
	// ErrSignatureInvalid indicates the token signature does not match the
	// configured secret.
	ErrSignatureInvalid = errors.New("codec: invalid signature")
	// ErrTokenExpired indicates the token signature is valid but the exp claim
	// has passed.
	ErrTokenExpired = errors.New("codec: token expired")
)

// tokenClaims is the wire representation of a token payload. The JSON field
// names are part of the token format consumed by existing clients.
type tokenClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Kind     string `json:"type"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes signed token payloads with HMAC-SHA256. It holds
// no mutable state and performs no I/O; issued-at and expiry timestamps are
// supplied by the caller.
type Codec struct {
	secret []byte
}

// NewCodec constructs a Codec signing with the supplied shared secret.
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("codec: signing secret is required")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Encode serialises and signs the payload. Identical inputs produce identical
// tokens.
func (c *Codec) Encode(payload domain.TokenPayload) (string, error) {
	if payload.UserID <= 0 {
		return "", fmt.Errorf("codec: subject id is required")
	}
	if payload.Kind != domain.TokenKindAccess && payload.Kind != domain.TokenKindRefresh {
		return "", fmt.Errorf("codec: unknown token kind %q", payload.Kind)
	}

	claims := tokenClaims{
		UserID:   payload.UserID,
		Username: payload.Username,
		Email:    payload.Email,
		Role:     string(payload.Role),
		Kind:     string(payload.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(payload.IssuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt.UTC()),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("codec: sign token: %w", err)
	}

	return signed, nil
}

// Decode verifies the signature and expiry before trusting any claim.
// Expired tokens surface ErrTokenExpired so callers can prompt a refresh
// instead of a hard reject.
func (c *Codec) Decode(token string) (domain.TokenPayload, error) {
	return c.decode(token, true)
}

// DecodeIgnoringExpiry verifies the signature but accepts an elapsed exp
// claim. Revocation uses this so an already-expired token can still be
// blacklisted, keeping logout idempotent.
func (c *Codec) DecodeIgnoringExpiry(token string) (domain.TokenPayload, error) {
	return c.decode(token, false)
}

func (c *Codec) decode(token string, validateExpiry bool) (domain.TokenPayload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.TokenPayload{}, ErrMalformedToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if !validateExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return domain.TokenPayload{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return domain.TokenPayload{}, ErrSignatureInvalid
		default:
			return domain.TokenPayload{}, ErrMalformedToken
		}
	}

	if parsed == nil || !parsed.Valid {
		return domain.TokenPayload{}, ErrMalformedToken
	}

	return claims.toPayload()
}

func (c *tokenClaims) toPayload() (domain.TokenPayload, error) {
	if c.UserID <= 0 {
		return domain.TokenPayload{}, ErrMalformedToken
	}

	kind := domain.TokenKind(c.Kind)
	if kind != domain.TokenKindAccess && kind != domain.TokenKindRefresh {
		return domain.TokenPayload{}, ErrMalformedToken
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return domain.TokenPayload{}, ErrMalformedToken
	}

	return domain.TokenPayload{
		UserID:    c.UserID,
		Username:  c.Username,
		Email:     c.Email,
		Role:      domain.Role(c.Role),
		Kind:      kind,
		IssuedAt:  c.IssuedAt.Time.UTC(),
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}, nil
}
