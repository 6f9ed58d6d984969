package session

import "time"

const (
	DefaultTokenExpiryBuffer   = 5 * time.Minute
	DefaultMaxInactiveDuration = 30 * time.Minute
	DefaultSecureAccessWindow  = time.Hour
)

type DenyReason string

const (
	DenyNotAuthenticated       DenyReason = "not_authenticated"
	DenyAccountInactive        DenyReason = "account_inactive"
	DenyTokenExpired           DenyReason = "token_expired"
	DenySessionInactive        DenyReason = "session_inactive"
	DenyInsufficientRole       DenyReason = "insufficient_role"
	DenyInsufficientPermission DenyReason = "insufficient_permission"
	DenyStepUpRequired         DenyReason = "step_up_required"
)

// Decision is a typed authorization outcome, not an error. Callers branch on
// it; the denial reason is precise enough to drive distinct user messages.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// AccessRequest describes what a protected operation demands of the current
// session. The zero value requires only a live authenticated session.
type AccessRequest struct {
	RequiredRoles       []string
	RequiredPermissions []string

	// RequiresRecentAuth demands the session was established within the
	// guard's secure access window (step-up authentication).
	RequiresRecentAuth bool
}

type GuardConfig struct {
	TokenExpiryBuffer   time.Duration
	MaxInactiveDuration time.Duration
	SecureAccessWindow  time.Duration
}

// Guard evaluates authorization decisions against a session snapshot. It is
// pure: it never mutates state and never errors. On Allow the caller is
// expected to report activity to the manager via TouchActivity.
type Guard struct {
	tokenExpiryBuffer   time.Duration
	maxInactiveDuration time.Duration
	secureAccessWindow  time.Duration
}

func NewGuard(config GuardConfig) Guard {
	if config.TokenExpiryBuffer <= 0 {
		config.TokenExpiryBuffer = DefaultTokenExpiryBuffer
	}
	if config.MaxInactiveDuration <= 0 {
		config.MaxInactiveDuration = DefaultMaxInactiveDuration
	}
	if config.SecureAccessWindow <= 0 {
		config.SecureAccessWindow = DefaultSecureAccessWindow
	}

	return Guard{
		tokenExpiryBuffer:   config.TokenExpiryBuffer,
		maxInactiveDuration: config.MaxInactiveDuration,
		secureAccessWindow:  config.SecureAccessWindow,
	}
}

// Authorize evaluates the checks in a fixed order and short-circuits at the
// first failure: authentication, account status, token expiry (with buffer),
// inactivity, roles, permissions, step-up window.
func (g Guard) Authorize(state State, request AccessRequest, now time.Time) Decision {
	if !state.Authenticated || state.Principal == nil {
		return Deny(DenyNotAuthenticated)
	}

	if !state.Principal.Active {
		return Deny(DenyAccountInactive)
	}

	if state.ExpiresAt == nil || !now.Before(state.ExpiresAt.Add(-g.tokenExpiryBuffer)) {
		return Deny(DenyTokenExpired)
	}

	if state.LastActivityAt != nil && now.Sub(*state.LastActivityAt) > g.maxInactiveDuration {
		return Deny(DenySessionInactive)
	}

	for _, role := range request.RequiredRoles {
		if !state.Principal.HasRole(role) {
			return Deny(DenyInsufficientRole)
		}
	}

	for _, permission := range request.RequiredPermissions {
		if !state.Principal.HasPermission(permission) {
			return Deny(DenyInsufficientPermission)
		}
	}

	if request.RequiresRecentAuth {
		if state.EstablishedAt == nil || now.Sub(*state.EstablishedAt) > g.secureAccessWindow {
			return Deny(DenyStepUpRequired)
		}
	}

	return Allow()
}
