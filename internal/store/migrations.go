package store

import "fmt"

// migrate applies the schema for the configured driver. Statements are
// idempotent so the list can grow append-only across releases.
func (s *Store) migrate() error {
	var migrations []string

	switch s.driver {
	case DriverPostgres:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				password_hash BYTEA NOT NULL,
				salt BYTEA NOT NULL,
				role TEXT NOT NULL DEFAULT 'user',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				failed_attempts INTEGER NOT NULL DEFAULT 0,
				locked_until TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				last_login_at TIMESTAMPTZ
			)`,
		}
	default: // sqlite
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT UNIQUE NOT NULL,
				display_name TEXT NOT NULL DEFAULT '',
				password_hash BLOB NOT NULL,
				salt BLOB NOT NULL,
				role TEXT NOT NULL DEFAULT 'user',
				is_active INTEGER NOT NULL DEFAULT 1,
				failed_attempts INTEGER NOT NULL DEFAULT 0,
				locked_until DATETIME,
				created_at DATETIME NOT NULL,
				last_login_at DATETIME
			)`,
		}
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
