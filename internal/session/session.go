// Package session tracks authenticated identities between requests. Tokens
// are HS256-signed JWTs carrying a session ID; the authoritative state
// (identity, last activity) lives server-side, so idle timeout and logout
// take effect regardless of the token's own lifetime.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sluicedb/sluice/internal/model"
)

// ErrNoSession is returned for missing, expired, or invalid sessions. An
// expired session is indistinguishable from never having logged in.
var ErrNoSession = errors.New("no active session")

type state struct {
	identity     model.Identity
	lastActivity time.Time
}

// Manager issues and resolves session tokens. All session state is held in
// memory; idle timeout is evaluated lazily on use, never by a background
// sweep.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*state
	secret   []byte
	timeout  time.Duration

	now func() time.Time // swapped in tests
}

// NewManager creates a Manager signing tokens with secret. Sessions idle
// longer than timeout are destroyed on next use.
func NewManager(secret []byte, timeout time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*state),
		secret:   secret,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Create registers a new session for the identity and returns its token.
func (m *Manager) Create(identity model.Identity) (string, error) {
	id := uuid.NewString()
	now := m.now()

	claims := jwt.RegisteredClaims{
		ID:       id,
		Subject:  identity.Username,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   "sluice",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = &state{identity: identity, lastActivity: now}
	m.mu.Unlock()

	return token, nil
}

// Resolve verifies the token, applies the idle timeout, and touches the
// session's last activity. Expired or unknown sessions yield ErrNoSession.
func (m *Manager) Resolve(token string) (*model.Identity, error) {
	id, err := m.sessionID(token)
	if err != nil {
		return nil, ErrNoSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}

	now := m.now()
	if now.Sub(st.lastActivity) > m.timeout {
		delete(m.sessions, id)
		return nil, ErrNoSession
	}

	st.lastActivity = now
	identity := st.identity
	return &identity, nil
}

// Logout destroys the session immediately. Unknown or already-expired
// tokens are a no-op.
func (m *Manager) Logout(token string) {
	id, err := m.sessionID(token)
	if err != nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions (expired ones not yet touched
// still count, since expiry is lazy).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sessionID verifies the token signature and extracts the session ID.
func (m *Manager) sessionID(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid || claims.ID == "" {
		return "", ErrNoSession
	}
	return claims.ID, nil
}
