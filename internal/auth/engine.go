// Package auth implements the credential engine: login verification with
// lockout policy, and the administrative operations on user accounts. The
// engine is an explicitly constructed instance owning its store and keyring;
// there is no ambient global state.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sluicedb/sluice/internal/crypto"
	"github.com/sluicedb/sluice/internal/keyring"
	"github.com/sluicedb/sluice/internal/model"
	"github.com/sluicedb/sluice/internal/store"
)

// Policy holds the brute-force and session limits.
type Policy struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	SessionTimeout   time.Duration
}

// DefaultPolicy returns the stock policy: five attempts, fifteen-minute
// lockout, one-hour idle session timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		SessionTimeout:   time.Hour,
	}
}

// Engine authenticates users against the credential store and carries the
// administrative surface used by the CLI and the admin API.
type Engine struct {
	store  *store.Store
	keys   *keyring.Keyring
	policy Policy
	logger *slog.Logger

	now func() time.Time // swapped in tests
}

// NewEngine constructs an Engine. Zero policy fields fall back to defaults.
func NewEngine(st *store.Store, keys *keyring.Keyring, policy Policy, logger *slog.Logger) *Engine {
	def := DefaultPolicy()
	if policy.MaxLoginAttempts <= 0 {
		policy.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = def.LockoutDuration
	}
	if policy.SessionTimeout <= 0 {
		policy.SessionTimeout = def.SessionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		keys:   keys,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the engine's effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// dummySalt is hashed against when the username does not exist, so the
// not-found path costs the same as a wrong-password verification.
var dummySalt = []byte("sluice-dummy-salt")

// Login verifies a username/password pair. The state machine is terminal in
// one pass: unknown user and wrong password produce the same error, disabled
// and locked accounts fail before any hash work, and a mismatch records a
// failed attempt which may trip the lockout.
func (e *Engine) Login(ctx context.Context, username, password string) (*model.Identity, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	now := e.now()

	u, err := e.store.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			crypto.HashPassword([]byte(password), dummySalt)
			e.logger.Warn("login failed", "username", username, "reason", "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !u.IsActive {
		e.logger.Warn("login failed", "username", username, "reason", "account disabled")
		return nil, ErrAccountDisabled
	}

	if u.Locked(now) {
		remaining := u.LockedUntil.Sub(now).Round(time.Second)
		e.logger.Warn("login failed", "username", username, "reason", "account locked", "remaining", remaining)
		return nil, &AccountLockedError{Remaining: remaining}
	}

	digest, err := e.keys.Open(u.PasswordHash)
	if err != nil {
		// Undecryptable stored hash: key mismatch or corrupt record. Keep
		// the caller-visible error generic.
		e.logger.Error("login failed", "username", username, "reason", "stored hash unrecoverable", "error", err)
		return nil, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword([]byte(password), u.Salt, digest) {
		count, ferr := e.store.RecordFailedAttempt(ctx, username, e.policy.MaxLoginAttempts, now.Add(e.policy.LockoutDuration))
		if ferr != nil {
			return nil, fmt.Errorf("record failed attempt: %w", ferr)
		}
		if count >= e.policy.MaxLoginAttempts {
			e.logger.Warn("account locked", "username", username, "failed_attempts", count, "lockout", e.policy.LockoutDuration)
		} else {
			e.logger.Warn("login failed", "username", username, "reason", "wrong password", "failed_attempts", count)
		}
		return nil, ErrInvalidCredentials
	}

	if err := e.store.RecordSuccess(ctx, username, now); err != nil {
		return nil, fmt.Errorf("record success: %w", err)
	}

	e.logger.Info("login succeeded", "username", username, "role", u.Role)
	return &model.Identity{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}, nil
}

// CreateUser creates a new account with a fresh salt and a sealed password
// digest. Username collisions surface as store.ErrDuplicate.
func (e *Engine) CreateUser(ctx context.Context, username, password string, role model.Role, displayName string) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	sealed, salt, err := e.sealPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: sealed,
		Salt:         salt,
		Role:         role,
		IsActive:     true,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	e.logger.Info("user created", "username", username, "role", role)
	return u, nil
}

// SetPassword replaces the user's password. The per-user salt is rotated:
// a password change is a full credential reset, never a re-hash under old
// material.
func (e *Engine) SetPassword(ctx context.Context, username, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	sealed, salt, err := e.sealPassword(newPassword)
	if err != nil {
		return err
	}
	if err := e.store.SetPassword(ctx, username, sealed, salt); err != nil {
		return err
	}

	e.logger.Info("password changed", "username", username)
	return nil
}

// SetRole changes the user's role. Demoting the last active admin is refused.
func (e *Engine) SetRole(ctx context.Context, username string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if role != model.RoleAdmin {
		if err := e.guardLastAdmin(ctx, username); err != nil {
			return err
		}
	}
	if err := e.store.UpdateRole(ctx, username, role); err != nil {
		return err
	}

	e.logger.Info("role changed", "username", username, "role", role)
	return nil
}

// SetActive activates or deactivates the account. Deactivating the last
// active admin is refused.
func (e *Engine) SetActive(ctx context.Context, username string, active bool) error {
	if !active {
		if err := e.guardLastAdmin(ctx, username); err != nil {
			return err
		}
	}
	if err := e.store.SetActive(ctx, username, active); err != nil {
		return err
	}

	e.logger.Info("active flag changed", "username", username, "active", active)
	return nil
}

// Unlock clears the lockout and failure counter unconditionally.
func (e *Engine) Unlock(ctx context.Context, username string) error {
	if err := e.store.Unlock(ctx, username); err != nil {
		return err
	}
	e.logger.Info("account unlocked", "username", username)
	return nil
}

// DeleteUser removes an account permanently. Deleting the last active admin
// is refused.
func (e *Engine) DeleteUser(ctx context.Context, username string) error {
	if err := e.guardLastAdmin(ctx, username); err != nil {
		return err
	}
	if err := e.store.DeleteUser(ctx, username); err != nil {
		return err
	}
	e.logger.Info("user deleted", "username", username)
	return nil
}

// GetUser returns a single user record.
func (e *Engine) GetUser(ctx context.Context, username string) (*model.User, error) {
	return e.store.GetUser(ctx, username)
}

// ListUsers returns all users ordered by username.
func (e *Engine) ListUsers(ctx context.Context) ([]model.User, error) {
	return e.store.ListUsers(ctx)
}

// EnsureDefaultAdmin creates an initial admin account when the store is
// empty. The generated password is returned exactly once for display; it is
// never persisted in plaintext or logged.
func (e *Engine) EnsureDefaultAdmin(ctx context.Context) (password string, created bool, err error) {
	n, err := e.store.CountUsers(ctx)
	if err != nil {
		return "", false, err
	}
	if n > 0 {
		return "", false, nil
	}

	raw, err := crypto.RandBytes(12)
	if err != nil {
		return "", false, fmt.Errorf("generate admin password: %w", err)
	}
	password = base64.RawURLEncoding.EncodeToString(raw)

	if _, err := e.CreateUser(ctx, "admin", password, model.RoleAdmin, "System Administrator"); err != nil {
		return "", false, err
	}

	e.logger.Warn("created default admin account", "username", "admin")
	return password, true, nil
}

// sealPassword derives a fresh salt, hashes the password against it, and
// seals the digest for storage.
func (e *Engine) sealPassword(password string) (sealed, salt []byte, err error) {
	salt, err = crypto.RandBytes(crypto.SaltLen)
	if err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	digest := crypto.HashPassword([]byte(password), salt)
	sealed, err = e.keys.Seal(digest)
	if err != nil {
		return nil, nil, fmt.Errorf("seal password digest: %w", err)
	}
	return sealed, salt, nil
}

// guardLastAdmin refuses the operation when username is the only remaining
// active admin. Operations on non-admin or inactive targets pass through.
func (e *Engine) guardLastAdmin(ctx context.Context, username string) error {
	u, err := e.store.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if u.Role != model.RoleAdmin || !u.IsActive {
		return nil
	}
	n, err := e.store.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}
