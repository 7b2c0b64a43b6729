package domain

import "time"

// LoginSucceededEvent is emitted after a successful credential login.
type LoginSucceededEvent struct {
	EventID   string
	UserID    int64
	Username  string
	Role      Role
	IP        string
	UserAgent string
	At        time.Time
}

// LoginFailedEvent is emitted when a credential login is rejected.
type LoginFailedEvent struct {
	EventID    string
	Identifier string
	Reason     string
	IP         string
	UserAgent  string
	At         time.Time
}

// TokenRevokedEvent is emitted when a token is blacklisted ahead of expiry.
type TokenRevokedEvent struct {
	EventID string
	UserID  int64
	Kind    TokenKind
	Reason  string
	At      time.Time
}
