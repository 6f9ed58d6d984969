package sessionkit

import (
	"context"
	"errors"
	"testing"
	"time"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/scheduler"
	"github.com/porthorian/sessionkit/pkg/session"
	memorystorage "github.com/porthorian/sessionkit/pkg/storage/memory"
)

type stubAuthenticator struct {
	clk      *scheduler.Manual
	loginErr error
}

func (s *stubAuthenticator) Login(ctx context.Context, credentials session.Credentials) (session.LoginResult, error) {
	if s.loginErr != nil {
		return session.LoginResult{}, s.loginErr
	}

	return session.LoginResult{
		Principal: session.Principal{
			ID:          "user-1",
			Roles:       []string{"user"},
			Permissions: []string{"doc:read"},
			Active:      true,
		},
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    s.clk.Now().Add(time.Hour),
		SessionID:    "sess-1",
	}, nil
}

func (s *stubAuthenticator) Refresh(ctx context.Context, refreshToken string) (session.RefreshResult, error) {
	return session.RefreshResult{
		AccessToken: "access-2",
		ExpiresAt:   s.clk.Now().Add(time.Hour),
	}, nil
}

func (s *stubAuthenticator) Logout(ctx context.Context, request session.LogoutRequest) error {
	return nil
}

func newTestClient(t *testing.T) (*Client, *scheduler.Manual) {
	t.Helper()

	ms := scheduler.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	client, err := New(Config{
		Authenticator: &stubAuthenticator{clk: ms},
		StateStore:    memorystorage.NewAdapter(),
		Clock:         ms,
		Scheduler:     ms,
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})
	return client, ms
}

func TestNewRequiresAuthenticator(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, skerrors.ErrMissingAuthenticator) {
		t.Fatalf("expected missing authenticator error, got %v", err)
	}
}

func TestNewRejectsUnknownStorageBackend(t *testing.T) {
	_, err := New(Config{
		Authenticator: &stubAuthenticator{},
		Runtime: RuntimeConfig{
			Storage: StorageConfig{Backend: "bogus"},
		},
	})
	if err == nil {
		t.Fatal("expected unknown backend to be rejected")
	}
}

func TestAuthorizeBeforeLogin(t *testing.T) {
	client, _ := newTestClient(t)

	decision := client.Authorize(session.AccessRequest{})
	if decision.Allowed || decision.Reason != session.DenyNotAuthenticated {
		t.Fatalf("expected deny(not_authenticated), got %+v", decision)
	}
}

func TestLoginThenAuthorize(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Login(ctx, session.Credentials{Username: "demo"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	decision := client.Authorize(session.AccessRequest{})
	if !decision.Allowed {
		t.Fatalf("expected allow, got deny(%s)", decision.Reason)
	}
}

func TestAuthorizeTouchesActivityOnAllowOnly(t *testing.T) {
	client, ms := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Login(ctx, session.Credentials{Username: "demo"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	ms.Advance(5 * time.Minute)
	before := client.CurrentState().LastActivityAt

	decision := client.Authorize(session.AccessRequest{})
	if !decision.Allowed {
		t.Fatalf("expected allow, got deny(%s)", decision.Reason)
	}

	after := client.CurrentState().LastActivityAt
	if after == nil || !after.After(*before) {
		t.Fatalf("expected activity timestamp to advance, before=%v after=%v", before, after)
	}

	// A denied request must not register activity.
	stamped := *after
	ms.Advance(5 * time.Minute)
	decision = client.Authorize(session.AccessRequest{RequiredRoles: []string{"admin"}})
	if decision.Allowed || decision.Reason != session.DenyInsufficientRole {
		t.Fatalf("expected deny(insufficient_role), got %+v", decision)
	}
	if !client.CurrentState().LastActivityAt.Equal(stamped) {
		t.Fatal("expected denied request to leave activity timestamp untouched")
	}
}

func TestLogoutResetsSession(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Login(ctx, session.Credentials{Username: "demo"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	client.Logout(ctx)

	if client.CurrentState().Authenticated {
		t.Fatal("expected unauthenticated state after logout")
	}
	decision := client.Authorize(session.AccessRequest{})
	if decision.Allowed || decision.Reason != session.DenyNotAuthenticated {
		t.Fatalf("expected deny(not_authenticated), got %+v", decision)
	}
}

func TestSubscribeThroughFacade(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	var observed []bool
	unsubscribe := client.Subscribe(func(state session.State) {
		observed = append(observed, state.Authenticated)
	})
	defer unsubscribe()

	if _, err := client.Login(ctx, session.Credentials{Username: "demo"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	client.Logout(ctx)

	if len(observed) != 2 || !observed[0] || observed[1] {
		t.Fatalf("expected [true false] notifications, got %v", observed)
	}
}
