package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/porthorian/sessionkit/pkg/clock"
	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/scheduler"
	"github.com/porthorian/sessionkit/pkg/storage"
)

const (
	DefaultRefreshLeadTime         = 10 * time.Minute
	DefaultInactivityCheckInterval = time.Minute
)

type ManagerConfig struct {
	// Authenticator is required.
	Authenticator Authenticator

	// Store persists sanitized snapshots across restarts. Optional; nil
	// disables persistence.
	Store storage.StateStore

	Clock     clock.Clock
	Scheduler scheduler.Scheduler
	Logger    logr.Logger

	// RefreshLeadTime is how long before token expiry the automatic refresh
	// fires.
	RefreshLeadTime time.Duration

	// MaxInactiveDuration is how long a session may sit idle before the
	// inactivity check logs it out.
	MaxInactiveDuration time.Duration

	InactivityCheckInterval time.Duration
}

// Manager owns the single current session State and its credential-refresh
// lifecycle. State is replaced wholesale on every transition; readers always
// observe a complete snapshot, never a partial one.
type Manager struct {
	mu    sync.Mutex
	state State

	// publishMu serializes the swap-persist-enqueue section of a transition
	// so notifications queue in the order snapshots were applied. notifyMu
	// admits a single delivering goroutine; pending holds queued
	// notifications until it drains them.
	publishMu sync.Mutex
	notifyMu  sync.Mutex
	pending   []notification

	authn  Authenticator
	store  storage.StateStore
	clk    clock.Clock
	sched  scheduler.Scheduler
	logger logr.Logger

	refreshLead   time.Duration
	maxInactive   time.Duration
	checkInterval time.Duration

	refreshTask    scheduler.Handle
	inactivityTask scheduler.Handle

	subscribers map[int]func(State)
	nextSubID   int
}

func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Authenticator == nil {
		return nil, skerrors.ErrMissingAuthenticator
	}
	if config.Clock == nil {
		config.Clock = clock.System()
	}
	if config.Scheduler == nil {
		config.Scheduler = scheduler.System()
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	if config.RefreshLeadTime <= 0 {
		config.RefreshLeadTime = DefaultRefreshLeadTime
	}
	if config.MaxInactiveDuration <= 0 {
		config.MaxInactiveDuration = DefaultMaxInactiveDuration
	}
	if config.InactivityCheckInterval <= 0 {
		config.InactivityCheckInterval = DefaultInactivityCheckInterval
	}

	m := &Manager{
		state:         Empty(),
		authn:         config.Authenticator,
		store:         config.Store,
		clk:           config.Clock,
		sched:         config.Scheduler,
		logger:        config.Logger,
		refreshLead:   config.RefreshLeadTime,
		maxInactive:   config.MaxInactiveDuration,
		checkInterval: config.InactivityCheckInterval,
		subscribers:   map[int]func(State){},
	}

	m.restore()

	m.inactivityTask = m.sched.Repeat(m.checkInterval, m.checkInactivity)

	return m, nil
}

// restore loads a persisted snapshot on startup. An invalid or expired
// snapshot is discarded and the manager cold-starts unauthenticated.
func (m *Manager) restore() {
	if m.store == nil {
		return
	}

	ctx := context.Background()
	value, ok, err := m.store.GetItem(ctx, storage.ItemAuthState)
	if err != nil {
		m.logger.Error(err, "failed to load persisted session state")
		return
	}
	if !ok {
		return
	}

	state, err := decodeState(value)
	if err != nil {
		m.logger.Error(err, "discarding undecodable persisted session state")
		m.removePersisted(ctx)
		return
	}

	if !state.Valid(m.clk.Now()) {
		m.logger.V(1).Info("discarding stale persisted session state")
		m.removePersisted(ctx)
		return
	}

	m.state = state
	m.scheduleRefresh(state)
	m.logger.V(1).Info("restored persisted session", "principal", state.Principal.ID)
}

// Login exchanges credentials with the remote authenticator and installs a
// fresh authenticated snapshot. On failure the current state is untouched.
func (m *Manager) Login(ctx context.Context, credentials Credentials) (State, error) {
	result, err := m.authn.Login(ctx, credentials)
	if err != nil {
		var typed *skerrors.Error
		if !errors.As(err, &typed) {
			err = skerrors.Wrap(skerrors.CodeUnauthenticated, "login rejected", err)
		}
		return State{}, err
	}

	now := m.clk.Now()
	principal := result.Principal
	expiresAt := result.ExpiresAt

	state := State{
		Authenticated:  true,
		Principal:      &principal,
		AccessToken:    result.AccessToken,
		RefreshToken:   result.RefreshToken,
		SessionID:      result.SessionID,
		ExpiresAt:      &expiresAt,
		EstablishedAt:  &now,
		LastActivityAt: &now,
	}

	m.transition(ctx, state)
	m.scheduleRefresh(state)
	m.logger.V(1).Info("session established", "principal", principal.ID, "expires_at", expiresAt)
	return state, nil
}

// Refresh exchanges the current refresh token for a new access token. On
// failure the state is left unchanged and the error carries the
// refresh_failed code; the refresh scheduler treats that as an implicit
// session timeout.
func (m *Manager) Refresh(ctx context.Context) (State, error) {
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()

	if !current.Authenticated || current.RefreshToken == "" {
		return State{}, skerrors.New(skerrors.CodeRefreshFailed, "no refresh token available")
	}

	result, err := m.authn.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return State{}, skerrors.Wrap(skerrors.CodeRefreshFailed, "token refresh rejected", err)
	}

	m.mu.Lock()
	// The session may have ended while the exchange was in flight; a stale
	// result must not resurrect it.
	if !m.state.Authenticated || m.state.RefreshToken != current.RefreshToken {
		m.mu.Unlock()
		return State{}, skerrors.New(skerrors.CodeSessionExpired, "session ended during refresh")
	}
	next := m.state
	m.mu.Unlock()

	expiresAt := result.ExpiresAt
	next.AccessToken = result.AccessToken
	next.ExpiresAt = &expiresAt
	if result.SessionID != "" {
		next.SessionID = result.SessionID
	}

	m.transition(ctx, next)
	m.scheduleRefresh(next)
	m.logger.V(1).Info("session refreshed", "expires_at", expiresAt)
	return next, nil
}

// Logout clears the session. Local state is cleared unconditionally; the
// remote invalidation afterwards is best-effort and its failure is only
// logged.
func (m *Manager) Logout(ctx context.Context, reason string) {
	m.cancelRefresh()

	m.mu.Lock()
	previous := m.state
	m.mu.Unlock()

	m.transition(ctx, Empty())

	if !previous.Authenticated {
		return
	}

	m.logger.V(1).Info("session ended", "reason", reason)

	if err := m.authn.Logout(ctx, LogoutRequest{
		AccessToken: previous.AccessToken,
		SessionID:   previous.SessionID,
		Reason:      reason,
	}); err != nil {
		m.logger.Error(err, "remote logout failed", "reason", reason)
	}
}

// TouchActivity stamps the current authenticated state with a fresh
// last-activity time. Transient: subscribers are not notified and
// persistence is best-effort.
func (m *Manager) TouchActivity() {
	now := m.clk.Now()

	m.mu.Lock()
	if !m.state.Authenticated {
		m.mu.Unlock()
		return
	}
	next := m.state
	next.LastActivityAt = &now
	m.state = next
	m.mu.Unlock()

	m.persist(context.Background(), next)
}

func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to be called with every applied snapshot, in
// transition order. fn may call back into the manager, including Logout. The
// returned function unsubscribes.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Close cancels the refresh and inactivity timers. The manager must not be
// used afterwards.
func (m *Manager) Close() {
	m.cancelRefresh()

	m.mu.Lock()
	task := m.inactivityTask
	m.inactivityTask = nil
	m.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

type notification struct {
	state       State
	subscribers []func(State)
}

// transition applies a new snapshot, persists it and queues the subscriber
// notification. Queuing under publishMu means subscribers never observe a
// stale-then-newer reordering.
func (m *Manager) transition(ctx context.Context, next State) {
	m.publishMu.Lock()

	m.mu.Lock()
	m.state = next
	subscribers := make([]func(State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	m.persist(ctx, next)
	m.pending = append(m.pending, notification{state: next, subscribers: subscribers})

	m.publishMu.Unlock()

	m.deliverPending()
}

// deliverPending drains queued notifications in order. A single goroutine
// delivers at a time; when delivery is already in progress the new
// notification is handed to the in-flight drainer, which lets a subscriber
// call back into the manager without deadlocking.
func (m *Manager) deliverPending() {
	for {
		if !m.notifyMu.TryLock() {
			// The holder re-checks the queue after unlocking, so the
			// notification we just queued will be delivered.
			return
		}

		for {
			m.publishMu.Lock()
			if len(m.pending) == 0 {
				m.publishMu.Unlock()
				break
			}
			next := m.pending[0]
			m.pending = m.pending[1:]
			m.publishMu.Unlock()

			for _, fn := range next.subscribers {
				fn(next.state)
			}
		}

		m.notifyMu.Unlock()

		m.publishMu.Lock()
		drained := len(m.pending) == 0
		m.publishMu.Unlock()
		if drained {
			return
		}
	}
}

// persist writes the snapshot to durable storage, or removes it when the
// snapshot is unauthenticated so no credentials outlive the session.
// Best-effort: storage failures are logged and swallowed.
func (m *Manager) persist(ctx context.Context, state State) {
	if m.store == nil {
		return
	}

	if !state.Authenticated {
		m.removePersisted(ctx)
		return
	}

	encoded, err := state.encode()
	if err != nil {
		m.logger.Error(err, "failed to encode session state")
		return
	}

	if err := m.store.SetItem(ctx, storage.ItemAuthState, encoded); err != nil {
		m.logger.Error(err, "failed to persist session state")
	}
}

func (m *Manager) removePersisted(ctx context.Context) {
	if err := m.store.RemoveItem(ctx, storage.ItemAuthState); err != nil {
		m.logger.Error(err, "failed to remove persisted session state")
	}
}

// scheduleRefresh arms the one-shot refresh timer at expiresAt minus the
// lead time. At most one refresh timer is ever pending; any previous timer
// is cancelled first.
func (m *Manager) scheduleRefresh(state State) {
	m.cancelRefresh()

	if state.ExpiresAt == nil {
		return
	}

	delay := state.ExpiresAt.Sub(m.clk.Now()) - m.refreshLead
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	m.refreshTask = m.sched.Once(delay, m.runScheduledRefresh)
	m.mu.Unlock()
}

func (m *Manager) cancelRefresh() {
	m.mu.Lock()
	task := m.refreshTask
	m.refreshTask = nil
	m.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
}

// runScheduledRefresh is the refresh timer body. A failed exchange is fatal:
// the session is logged out with the session_timeout reason rather than left
// authenticated-but-broken.
func (m *Manager) runScheduledRefresh() {
	ctx := context.Background()
	if _, err := m.Refresh(ctx); err != nil {
		// A session that already ended needs no logout of its own.
		if skerrors.IsCode(err, skerrors.CodeSessionExpired) {
			return
		}
		m.logger.Error(err, "scheduled refresh failed, ending session")
		m.Logout(ctx, ReasonSessionTimeout)
	}
}

func (m *Manager) checkInactivity() {
	now := m.clk.Now()

	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if !state.Authenticated || state.LastActivityAt == nil {
		return
	}

	if now.Sub(*state.LastActivityAt) > m.maxInactive {
		m.logger.V(1).Info("session idle past limit, ending session", "last_activity_at", state.LastActivityAt)
		m.Logout(context.Background(), ReasonSessionTimeout)
	}
}
