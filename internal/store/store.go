// Package store implements the durable credential store. It owns the users
// table and nothing else; hashing and encryption happen a layer above, so
// the store only ever sees sealed password material.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sluicedb/sluice/internal/model"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the sqlx-backed credential store. All single-record mutations are
// single statements or transactions, so counters and lock timestamps are
// always applied together or not at all.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open opens a credential store. For DriverSQLite the DSN is a file path or
// ":memory:"; for DriverPostgres it is a standard postgres DSN/URL.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case DriverSQLite:
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		}
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate credential store: %w", err)
	}
	return s, nil
}

// OpenDataDir opens the default SQLite store under dataDir, creating the
// directory if needed. Pass empty string for in-memory (tests).
func OpenDataDir(dataDir string) (*Store, error) {
	if dataDir == "" {
		return Open(DriverSQLite, ":memory:?_journal_mode=WAL")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := filepath.Join(dataDir, "sluice.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	return Open(DriverSQLite, dsn)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ?-style placeholders to the driver's native form.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// isUniqueViolation reports whether err is a unique-constraint failure on
// either backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "SQLSTATE 23505") // postgres
}

// CreateUser inserts a new user record. The ID and CreatedAt fields on u are
// populated after a successful insert. Username collisions are rejected with
// ErrDuplicate, never overwritten.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO users
		(username, display_name, password_hash, salt, role, is_active,
		 failed_attempts, locked_until, created_at, last_login_at)
		VALUES
		(:username, :display_name, :password_hash, :salt, :role, :is_active,
		 :failed_attempts, :locked_until, :created_at, :last_login_at)`

	if s.driver == DriverPostgres {
		// LastInsertId is not supported by pgx; use RETURNING.
		rows, err := s.db.NamedQueryContext(ctx, q+" RETURNING id", u)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert user: %w", err)
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&u.ID); err != nil {
				return fmt.Errorf("scan user id: %w", err)
			}
		}
		return rows.Err()
	}

	result, err := s.db.NamedExecContext(ctx, q, u)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get user id: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser returns a user by username. Matching is exact and case-sensitive.
func (s *Store) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.rebind("SELECT * FROM users WHERE username = ?"), username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by username for deterministic output.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the total number of user records. Used for first-run
// detection to trigger the default-admin bootstrap.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountActiveAdmins returns the number of active admin accounts.
func (s *Store) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	q := s.rebind("SELECT COUNT(*) FROM users WHERE role = ? AND is_active = TRUE")
	if err := s.db.GetContext(ctx, &n, q, model.RoleAdmin); err != nil {
		return 0, fmt.Errorf("count active admins: %w", err)
	}
	return n, nil
}

// exec runs a single-row mutation and maps zero affected rows to ErrNotFound.
func (s *Store) exec(ctx context.Context, op, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRole sets the user's role.
func (s *Store) UpdateRole(ctx context.Context, username string, role model.Role) error {
	return s.exec(ctx, "update role",
		"UPDATE users SET role = ? WHERE username = ?", role, username)
}

// SetPassword replaces the sealed password hash and salt. Failure counters
// and any lockout are cleared in the same statement: a password change is an
// authoritative credential reset.
func (s *Store) SetPassword(ctx context.Context, username string, sealedHash, salt []byte) error {
	return s.exec(ctx, "set password",
		`UPDATE users SET password_hash = ?, salt = ?, failed_attempts = 0, locked_until = NULL
		 WHERE username = ?`, sealedHash, salt, username)
}

// SetActive activates or deactivates the account.
func (s *Store) SetActive(ctx context.Context, username string, active bool) error {
	return s.exec(ctx, "set active",
		"UPDATE users SET is_active = ? WHERE username = ?", active, username)
}

// RecordFailedAttempt increments the failure counter and, when the new count
// reaches threshold, sets locked_until in the same transaction. Returns the
// new counter value.
func (s *Store) RecordFailedAttempt(ctx context.Context, username string, threshold int, lockedUntil time.Time) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		s.rebind("UPDATE users SET failed_attempts = failed_attempts + 1 WHERE username = ?"),
		username)
	if err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("increment failed attempts rows affected: %w", err)
	} else if n == 0 {
		return 0, ErrNotFound
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		s.rebind("SELECT failed_attempts FROM users WHERE username = ?"), username); err != nil {
		return 0, fmt.Errorf("read failed attempts: %w", err)
	}

	if count >= threshold {
		if _, err := tx.ExecContext(ctx,
			s.rebind("UPDATE users SET locked_until = ? WHERE username = ?"),
			lockedUntil.UTC(), username); err != nil {
			return 0, fmt.Errorf("set lockout: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit failed attempt: %w", err)
	}
	return count, nil
}

// RecordSuccess resets the failure counter, clears any lockout, and stamps
// the last login time.
func (s *Store) RecordSuccess(ctx context.Context, username string, now time.Time) error {
	return s.exec(ctx, "record success",
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login_at = ?
		 WHERE username = ?`, now.UTC(), username)
}

// Unlock clears the lockout and failure counter unconditionally. This is the
// administrative override; natural expiry needs no store operation.
func (s *Store) Unlock(ctx context.Context, username string) error {
	return s.exec(ctx, "unlock",
		"UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE username = ?", username)
}

// DeleteUser removes a user record permanently.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return s.exec(ctx, "delete user",
		"DELETE FROM users WHERE username = ?", username)
}
