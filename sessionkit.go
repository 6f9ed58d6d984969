package sessionkit

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/porthorian/sessionkit/pkg/clock"
	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/scheduler"
	"github.com/porthorian/sessionkit/pkg/session"
	"github.com/porthorian/sessionkit/pkg/storage"
)

type Config struct {
	// Authenticator is the remote authentication collaborator. Required.
	Authenticator session.Authenticator

	// StateStore persists sanitized session snapshots. Optional; when nil
	// the Runtime storage backend is consulted, and "none" disables
	// persistence entirely.
	StateStore storage.StateStore

	Logger    logr.Logger
	Clock     clock.Clock
	Scheduler scheduler.Scheduler

	Guard   session.GuardConfig
	Session SessionConfig
	Runtime RuntimeConfig
}

type SessionConfig struct {
	RefreshLeadTime         time.Duration
	MaxInactiveDuration     time.Duration
	InactivityCheckInterval time.Duration
}

// Client composes the session manager and guard into the single entry point
// most consumers need: authenticate, gate protected operations, tear down.
type Client struct {
	manager       *session.Manager
	guard         session.Guard
	clk           clock.Clock
	logger        logr.Logger
	closeResource func() error
}

func New(config Config) (*Client, error) {
	closeResource, resolvedConfig, err := config.initialize(context.Background())
	if err != nil {
		return nil, err
	}

	if resolvedConfig.Authenticator == nil {
		_ = closeResource()
		return nil, skerrors.ErrMissingAuthenticator
	}

	manager, err := session.NewManager(session.ManagerConfig{
		Authenticator:           resolvedConfig.Authenticator,
		Store:                   resolvedConfig.StateStore,
		Clock:                   resolvedConfig.Clock,
		Scheduler:               resolvedConfig.Scheduler,
		Logger:                  resolvedConfig.Logger,
		RefreshLeadTime:         resolvedConfig.Session.RefreshLeadTime,
		MaxInactiveDuration:     resolvedConfig.Session.MaxInactiveDuration,
		InactivityCheckInterval: resolvedConfig.Session.InactivityCheckInterval,
	})
	if err != nil {
		_ = closeResource()
		return nil, err
	}

	guardConfig := resolvedConfig.Guard
	if guardConfig.MaxInactiveDuration <= 0 {
		guardConfig.MaxInactiveDuration = resolvedConfig.Session.MaxInactiveDuration
	}

	return &Client{
		manager:       manager,
		guard:         session.NewGuard(guardConfig),
		clk:           resolvedConfig.Clock,
		logger:        resolvedConfig.Logger,
		closeResource: closeResource,
	}, nil
}

func (c *Client) Login(ctx context.Context, credentials session.Credentials) (session.State, error) {
	if c == nil || c.manager == nil {
		return session.State{}, skerrors.ErrMissingAuthenticator
	}
	return c.manager.Login(ctx, credentials)
}

func (c *Client) Logout(ctx context.Context) {
	if c == nil || c.manager == nil {
		return
	}
	c.manager.Logout(ctx, session.ReasonUserLogout)
}

func (c *Client) Refresh(ctx context.Context) (session.State, error) {
	if c == nil || c.manager == nil {
		return session.State{}, skerrors.ErrMissingAuthenticator
	}
	return c.manager.Refresh(ctx)
}

// Authorize gates a protected operation against the current session. On
// Allow the session's activity timestamp is touched; the guard itself stays
// pure.
func (c *Client) Authorize(request session.AccessRequest) session.Decision {
	if c == nil || c.manager == nil {
		return session.Deny(session.DenyNotAuthenticated)
	}

	decision := c.guard.Authorize(c.manager.CurrentState(), request, c.clk.Now())
	if decision.Allowed {
		c.manager.TouchActivity()
	}
	return decision
}

func (c *Client) CurrentState() session.State {
	if c == nil || c.manager == nil {
		return session.Empty()
	}
	return c.manager.CurrentState()
}

// Subscribe registers fn for every applied session snapshot, in transition
// order. The returned function unsubscribes.
func (c *Client) Subscribe(fn func(session.State)) func() {
	if c == nil || c.manager == nil {
		return func() {}
	}
	return c.manager.Subscribe(fn)
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	if c.manager != nil {
		c.manager.Close()
		c.manager = nil
	}

	if c.closeResource == nil {
		return nil
	}

	err := c.closeResource()
	if err != nil {
		return skerrors.Wrap(skerrors.CodeUnknown, "failed to close client resources", err)
	}
	c.closeResource = nil
	return nil
}
