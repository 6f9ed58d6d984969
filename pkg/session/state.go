package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Principal is the authenticated identity a session is bound to.
type Principal struct {
	ID          string   `json:"id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Active      bool     `json:"active"`
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// State is an immutable session snapshot. Every transition replaces the
// whole snapshot; no field is ever mutated in place. Optional fields are
// pointers so absence is explicit at every read site.
//
// Invariant: Authenticated implies Principal, AccessToken and ExpiresAt are
// all present.
type State struct {
	Authenticated  bool       `json:"authenticated"`
	Principal      *Principal `json:"principal,omitempty"`
	AccessToken    string     `json:"access_token,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	EstablishedAt  *time.Time `json:"established_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

// Empty returns the unauthenticated snapshot a process starts with.
func Empty() State {
	return State{}
}

// Valid reports whether the snapshot is an authenticated session whose
// access token is still live at now. Used to vet restored snapshots.
func (s State) Valid(now time.Time) bool {
	return s.Authenticated &&
		s.Principal != nil &&
		s.AccessToken != "" &&
		s.ExpiresAt != nil &&
		s.ExpiresAt.After(now)
}

func (s State) encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("session: failed to encode state: %w", err)
	}
	return string(data), nil
}

func decodeState(value string) (State, error) {
	var s State
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return State{}, fmt.Errorf("session: failed to decode stored state: %w", err)
	}
	return s, nil
}
