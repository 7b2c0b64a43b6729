package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/dealsbasket/marketplace-auth/internal/core/domain"
	"github.com/dealsbasket/marketplace-auth/internal/infra/config"
	"github.com/dealsbasket/marketplace-auth/internal/infra/security"
)

func newTestAuthService(t *testing.T, cfg config.JWTSettings, users *fakeUserStore) *AuthService {
	t.Helper()

	tokens, _ := newTestTokenService(t, cfg, users)

	if users == nil {
		users = &fakeUserStore{byID: map[int64]*domain.User{42: testUser()}}
	}

	svc, err := NewAuthService(tokens, users, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	return svc
}

func userStoreWithCredentials(t *testing.T, password string, mutate func(*domain.User)) *fakeUserStore {
	t.Helper()

	user := testUser()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user.PasswordHash = hash

	if mutate != nil {
		mutate(user)
	}

	return &fakeUserStore{
		byID:         map[int64]*domain.User{user.ID: user},
		byIdentifier: map[string]*domain.User{user.Username: user, user.Email: user},
	}
}

func TestLoginSuccess(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", nil)
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	events := &recordedEvents{}
	svc.WithEventPublisher(events)

	result, err := svc.Login(context.Background(), LoginInput{
		Identifier: "maria",
		Password:   "correct horse",
		IP:         "203.0.113.7",
		UserAgent:  "cli/1.0",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if result.User.ID != 42 {
		t.Fatalf("User.ID = %d, want 42", result.User.ID)
	}
	if result.User.PasswordHash != "" {
		t.Fatal("password hash must not leak out of Login")
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	if len(events.loginSucceeded) != 1 {
		t.Fatalf("loginSucceeded events = %d, want 1", len(events.loginSucceeded))
	}
	if events.loginSucceeded[0].UserID != 42 {
		t.Fatalf("event UserID = %d, want 42", events.loginSucceeded[0].UserID)
	}
}

func TestLoginByEmail(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", nil)
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	result, err := svc.Login(context.Background(), LoginInput{
		Identifier: "maria@example.com",
		Password:   "correct horse",
	})
	if err != nil {
		t.Fatalf("Login by email: %v", err)
	}
	if result.User.Username != "maria" {
		t.Fatalf("Username = %q, want maria", result.User.Username)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", nil)
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	events := &recordedEvents{}
	svc.WithEventPublisher(events)

	_, err := svc.Login(context.Background(), LoginInput{Identifier: "maria", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login error = %v, want ErrInvalidCredentials", err)
	}

	if len(events.loginFailed) != 1 {
		t.Fatalf("loginFailed events = %d, want 1", len(events.loginFailed))
	}
	if events.loginFailed[0].Reason != "wrong password" {
		t.Fatalf("event Reason = %q", events.loginFailed[0].Reason)
	}
}

func TestLoginUnknownIdentifier(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", nil)
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	_, err := svc.Login(context.Background(), LoginInput{Identifier: "nobody", Password: "whatever"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", func(u *domain.User) {
		u.IsActive = false
	})
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	// The password is checked first so the error does not reveal whether
	// the credentials were right for a disabled account.
	_, err := svc.Login(context.Background(), LoginInput{Identifier: "maria", Password: "correct horse"})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("Login error = %v, want ErrAccountDisabled", err)
	}
}

func TestLoginEmptyInput(t *testing.T) {
	svc := newTestAuthService(t, config.JWTSettings{}, nil)

	for _, input := range []LoginInput{
		{},
		{Identifier: "maria"},
		{Password: "correct horse"},
		{Identifier: "   ", Password: "correct horse"},
	} {
		if _, err := svc.Login(context.Background(), input); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%+v) error = %v, want ErrInvalidCredentials", input, err)
		}
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", nil)
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	pair, err := svc.Tokens().IssueTokenPair(*testUser())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	user, token, err := svc.Authenticate(context.Background(), "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != 42 || user.Username != "maria" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash != "" {
		t.Fatal("password hash must not leak out of Authenticate")
	}
	if token != pair.AccessToken {
		t.Fatal("Authenticate must return the raw token for later revocation")
	}
}

func TestAuthenticateNoCredentials(t *testing.T) {
	svc := newTestAuthService(t, config.JWTSettings{}, nil)

	for _, header := range []string{"", "   ", "Basic dXNlcjpwYXNz", "Bearer", "Bearer   ", "Token abc"} {
		if _, _, err := svc.Authenticate(context.Background(), header); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("Authenticate(%q) error = %v, want ErrNoCredentials", header, err)
		}
	}
}

func TestAuthenticateRefreshTokenRejected(t *testing.T) {
	svc := newTestAuthService(t, config.JWTSettings{}, nil)

	pair, err := svc.Tokens().IssueTokenPair(*testUser())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "Bearer "+pair.RefreshToken); !errors.Is(err, ErrTokenKindMismatch) {
		t.Fatalf("Authenticate error = %v, want ErrTokenKindMismatch", err)
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	user := testUser()
	users := &fakeUserStore{byID: map[int64]*domain.User{42: user}}
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	pair, err := svc.Tokens().IssueTokenPair(*user)
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	// Disable after the token was issued.
	user.IsActive = false

	if _, _, err := svc.Authenticate(context.Background(), "Bearer "+pair.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("Authenticate error = %v, want ErrAccountDisabled", err)
	}
}

func TestAuthenticateDeletedAccount(t *testing.T) {
	users := &fakeUserStore{byID: map[int64]*domain.User{}}
	svc := newTestAuthService(t, config.JWTSettings{}, users)

	pair, err := svc.Tokens().IssueTokenPair(*testUser())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "Bearer "+pair.AccessToken); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Authenticate error = %v, want ErrUserNotFound", err)
	}
}

func TestAuthenticateRevokedToken(t *testing.T) {
	svc := newTestAuthService(t, config.JWTSettings{}, nil)

	pair, err := svc.Tokens().IssueTokenPair(*testUser())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if err := svc.Logout(context.Background(), pair.AccessToken, ""); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "Bearer "+pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("Authenticate error = %v, want ErrTokenRevoked", err)
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	svc := newTestAuthService(t, config.JWTSettings{AllowRefresh: true}, nil)

	pair, err := svc.Tokens().IssueTokenPair(*testUser())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if err := svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.Tokens().Verify(context.Background(), pair.AccessToken, domain.TokenKindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("access after logout: %v, want ErrTokenRevoked", err)
	}
	if _, _, err := svc.Tokens().RefreshAccessToken(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh after logout: %v, want ErrTokenRevoked", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc := newTestAuthService(t, config.JWTSettings{}, nil)

	pair, err := svc.Tokens().IssueTokenPair(*testUser())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken); err != nil {
			t.Fatalf("Logout attempt %d: %v", i+1, err)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"BEARER abc.def.ghi", "abc.def.ghi", true},
		{"  Bearer abc.def.ghi  ", "abc.def.ghi", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"abc.def.ghi", "", false},
	}

	for _, tc := range cases {
		token, ok := ExtractBearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Errorf("ExtractBearerToken(%q) = (%q, %v), want (%q, %v)", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestLoginPublishFailureDoesNotBlock(t *testing.T) {
	users := userStoreWithCredentials(t, "correct horse", nil)
	svc := newTestAuthService(t, config.JWTSettings{}, users)
	svc.WithEventPublisher(&recordedEvents{err: errors.New("broker down")})

	if _, err := svc.Login(context.Background(), LoginInput{Identifier: "maria", Password: "correct horse"}); err != nil {
		t.Fatalf("Login must succeed despite publish failure: %v", err)
	}
}
