package session

import (
	"testing"
	"time"
)

func TestStateValid(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{
			name: "complete live session",
			state: State{
				Authenticated: true,
				Principal:     &Principal{ID: "user-1", Active: true},
				AccessToken:   "token",
				ExpiresAt:     &future,
			},
			want: true,
		},
		{
			name:  "empty",
			state: Empty(),
			want:  false,
		},
		{
			name: "missing principal",
			state: State{
				Authenticated: true,
				AccessToken:   "token",
				ExpiresAt:     &future,
			},
			want: false,
		},
		{
			name: "missing token",
			state: State{
				Authenticated: true,
				Principal:     &Principal{ID: "user-1"},
				ExpiresAt:     &future,
			},
			want: false,
		},
		{
			name: "expired",
			state: State{
				Authenticated: true,
				Principal:     &Principal{ID: "user-1"},
				AccessToken:   "token",
				ExpiresAt:     &past,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(now); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateEncodeDecode(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(time.Hour)

	original := State{
		Authenticated: true,
		Principal: &Principal{
			ID:          "user-1",
			Roles:       []string{"user", "editor"},
			Permissions: []string{"doc:read"},
			Active:      true,
		},
		AccessToken:   "access",
		RefreshToken:  "refresh",
		SessionID:     "sess-1",
		ExpiresAt:     &expiresAt,
		EstablishedAt: &now,
	}

	encoded, err := original.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodeState(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !decoded.Valid(now) {
		t.Fatal("expected decoded snapshot to validate")
	}
	if decoded.Principal.ID != "user-1" || !decoded.Principal.HasRole("editor") {
		t.Fatalf("principal lost in round trip: %+v", decoded.Principal)
	}
	if decoded.RefreshToken != "refresh" || decoded.SessionID != "sess-1" {
		t.Fatalf("credentials lost in round trip: %+v", decoded)
	}
	if decoded.LastActivityAt != nil {
		t.Fatal("expected absent activity timestamp to stay absent")
	}
}
