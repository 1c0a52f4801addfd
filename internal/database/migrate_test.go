package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	applied, err := migrate(db2.conn, migrations)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if applied != 0 {
		t.Errorf("expected no migrations on an up-to-date db, got %d", applied)
	}
}

func TestMigrateResumesFromVersion(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "partial.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	applied, err := migrate(conn, migrations[:1])
	if err != nil || applied != 1 {
		t.Fatalf("first migration: applied=%d err=%v", applied, err)
	}

	applied, err = migrate(conn, migrations)
	if err != nil {
		t.Fatalf("remaining migrations: %v", err)
	}
	if applied != len(migrations)-1 {
		t.Errorf("expected %d migrations applied, got %d", len(migrations)-1, applied)
	}
}

func TestMigrateStopsOnFailure(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "broken.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	boom := errors.New("boom")
	steps := []Migration{
		migrations[0],
		{Version: 2, Description: "broken", Up: func(*sql.Tx) error { return boom }},
	}
	applied, err := migrate(conn, steps)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if applied != 1 {
		t.Errorf("expected 1 migration applied before failure, got %d", applied)
	}

	version, _ := getSchemaVersion(conn)
	if version != 1 {
		t.Errorf("expected version 1 after failure, got %d", version)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}
