package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/sluicedb/sluice/internal/model"
)

var testIdentity = model.Identity{
	Username:    "mario",
	DisplayName: "Mario Rossi",
	Role:        model.RoleUser,
}

func newTestManager() *Manager {
	return NewManager(bytes.Repeat([]byte{0x07}, 32), time.Hour)
}

func TestCreateAndResolve(t *testing.T) {
	m := newTestManager()

	token, err := m.Create(testIdentity)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	id, err := m.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if *id != testIdentity {
		t.Errorf("Resolve = %+v, want %+v", id, testIdentity)
	}
}

func TestResolveTouchesActivity(t *testing.T) {
	m := newTestManager()
	token, _ := m.Create(testIdentity)

	base := time.Now()

	// Use the session 50 minutes in; idle clock restarts from there.
	m.now = func() time.Time { return base.Add(50 * time.Minute) }
	if _, err := m.Resolve(token); err != nil {
		t.Fatalf("Resolve at 50m error: %v", err)
	}

	// 70 minutes after creation but only 20 after last use: still alive.
	m.now = func() time.Time { return base.Add(70 * time.Minute) }
	if _, err := m.Resolve(token); err != nil {
		t.Errorf("Resolve at 70m (20m idle) error: %v", err)
	}
}

func TestIdleExpiry(t *testing.T) {
	m := newTestManager()
	token, _ := m.Create(testIdentity)

	m.now = func() time.Time { return time.Now().Add(61 * time.Minute) }

	if _, err := m.Resolve(token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expired session: error = %v, want ErrNoSession", err)
	}

	// An expired session does not refresh: it is gone for good.
	m.now = time.Now
	if _, err := m.Resolve(token); !errors.Is(err, ErrNoSession) {
		t.Errorf("expired session after clock reset: error = %v, want ErrNoSession", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0 after lazy expiry", m.Len())
	}
}

func TestLogout(t *testing.T) {
	m := newTestManager()
	token, _ := m.Create(testIdentity)

	m.Logout(token)

	if _, err := m.Resolve(token); !errors.Is(err, ErrNoSession) {
		t.Errorf("Resolve after logout: error = %v, want ErrNoSession", err)
	}

	// Logging out twice is harmless.
	m.Logout(token)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	m := newTestManager()
	token, _ := m.Create(testIdentity)

	tests := []string{
		"",
		"garbage",
		token + "x", // broken signature
	}
	for _, tok := range tests {
		if _, err := m.Resolve(tok); !errors.Is(err, ErrNoSession) {
			t.Errorf("Resolve(%.12q...): error = %v, want ErrNoSession", tok, err)
		}
	}

	// A token signed with a different secret must be rejected even though
	// it is a structurally valid JWT.
	other := NewManager(bytes.Repeat([]byte{0x08}, 32), time.Hour)
	foreign, _ := other.Create(testIdentity)
	if _, err := m.Resolve(foreign); !errors.Is(err, ErrNoSession) {
		t.Errorf("foreign-signed token: error = %v, want ErrNoSession", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	m := newTestManager()

	t1, _ := m.Create(testIdentity)
	t2, _ := m.Create(model.Identity{Username: "root", Role: model.RoleAdmin})

	m.Logout(t1)

	if _, err := m.Resolve(t1); !errors.Is(err, ErrNoSession) {
		t.Error("logged-out session still resolves")
	}
	id, err := m.Resolve(t2)
	if err != nil {
		t.Fatalf("unrelated session broken by logout: %v", err)
	}
	if id.Username != "root" {
		t.Errorf("Resolve = %q, want root", id.Username)
	}
}
