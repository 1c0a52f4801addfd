package database

import (
	"database/sql"
	"fmt"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every migration newer than PRAGMA user_version, in order,
// and returns how many were applied.
func migrate(conn *sql.DB, steps []Migration) (int, error) {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range steps {
		if m.Version <= current {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return applied, fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not honour user_version inside the transaction.
		// The DDL is idempotent, so a crash here just re-runs the step.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return applied, fmt.Errorf("setting version %d: %w", m.Version, err)
		}
		current = m.Version
		applied++
	}

	return applied, nil
}
