package domain

import "time"

// TokenKind discriminates access tokens from refresh tokens. A token is only
// accepted in the verification context matching its kind.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenPayload is the trusted claim set recovered from a verified token.
// Username, Email and Role are only populated on access tokens; refresh tokens
// carry the subject id alone to limit the blast radius of a leaked token.
type TokenPayload struct {
	UserID    int64
	Username  string
	Email     string
	Role      Role
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the payload has elapsed its validity window.
func (p TokenPayload) IsExpired(at time.Time) bool {
	return !p.ExpiresAt.After(at)
}

// TokenPair bundles the credentials issued on a successful login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
