package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{"user", RoleUser, false},
		{"", "", true},
		{"Admin", "", true}, // roles are lowercase only
		{"superuser", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRole(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUserLocked(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	u := User{}
	if u.Locked(now) {
		t.Error("user with nil LockedUntil should not be locked")
	}

	past := now.Add(-time.Minute)
	u.LockedUntil = &past
	if u.Locked(now) {
		t.Error("user with expired LockedUntil should not be locked")
	}

	future := now.Add(time.Minute)
	u.LockedUntil = &future
	if !u.Locked(now) {
		t.Error("user with future LockedUntil should be locked")
	}
}

func TestUserJSONHidesCredentialMaterial(t *testing.T) {
	u := User{
		Username:     "mario",
		PasswordHash: []byte("sealed"),
		Salt:         []byte("salt"),
		Role:         RoleUser,
		IsActive:     true,
	}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if _, ok := m["password_hash"]; ok {
		t.Error("password_hash must not appear in JSON output")
	}
	if _, ok := m["salt"]; ok {
		t.Error("salt must not appear in JSON output")
	}
	if m["username"] != "mario" {
		t.Errorf("username = %v, want mario", m["username"])
	}
}
