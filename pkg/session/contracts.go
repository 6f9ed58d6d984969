package session

import (
	"context"
	"time"
)

// Logout reasons recorded on session teardown.
const (
	ReasonUserLogout     = "user_logout"
	ReasonSessionTimeout = "session_timeout"
)

type Credentials struct {
	Username string
	Password string
}

type LoginResult struct {
	Principal    Principal
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionID    string
}

type RefreshResult struct {
	AccessToken string
	ExpiresAt   time.Time
	SessionID   string
}

type LogoutRequest struct {
	AccessToken string
	SessionID   string
	Reason      string
}

// Authenticator is the remote authentication collaborator the manager
// exchanges credentials and tokens with.
type Authenticator interface {
	Login(ctx context.Context, credentials Credentials) (LoginResult, error)

	// Refresh exchanges a refresh token for a new access token. A rejected
	// exchange is fatal to the session; the manager never retries it.
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)

	// Logout invalidates the session remotely. Best-effort: the manager
	// clears local state regardless of the outcome.
	Logout(ctx context.Context, request LogoutRequest) error
}
