// Package dbtest opens throwaway SQLite databases with the service schema for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SMTS-backend/internal/platform/db"
)

const schema = `
CREATE TABLE users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE packages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	code         TEXT NOT NULL UNIQUE,
	description  TEXT NOT NULL DEFAULT '',
	cabinet      TEXT NOT NULL UNIQUE,
	category     TEXT NOT NULL,
	shift        TEXT NOT NULL,
	available    TEXT NOT NULL DEFAULT 'YES',
	total_sample INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

CREATE TABLE package_defects (
	package_id   INTEGER NOT NULL,
	defect_type  TEXT NOT NULL,
	sample_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (package_id, defect_type)
);

CREATE TABLE borrow_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	package_id       INTEGER NOT NULL,
	borrower_id      INTEGER NOT NULL,
	verifier_id      INTEGER NOT NULL,
	borrowed_at      DATETIME NOT NULL,
	due_at           DATETIME NOT NULL,
	returned_at      DATETIME NULL,
	verified_at      DATETIME NULL,
	expected_samples INTEGER NOT NULL,
	returned_samples INTEGER NULL,
	justification    TEXT NULL,
	return_status    TEXT NOT NULL
);

CREATE INDEX idx_borrow_records_package_status ON borrow_records (package_id, return_status);
CREATE INDEX idx_borrow_records_status_due ON borrow_records (return_status, due_at);
`

// Open creates a fresh database under t.TempDir and applies the schema.
func Open(t testing.TB) *db.DB {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "smts.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// InsertUser seeds a user row and returns its id.
func InsertUser(t testing.TB, conn *db.DB, username, email, role, passwordHash string) int64 {
	t.Helper()
	res, err := conn.ExecContext(context.Background(),
		`INSERT INTO users (username, email, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, email, role, passwordHash, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert user %s: %v", username, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// InsertPackage seeds an available package with the given total sample count.
func InsertPackage(t testing.TB, conn *db.DB, code, cabinet string, totalSample int) int64 {
	t.Helper()
	res, err := conn.ExecContext(context.Background(),
		`INSERT INTO packages (code, description, cabinet, category, shift, available, total_sample, created_at)
		 VALUES (?, '', ?, 'QFN', 'A', 'YES', ?, ?)`,
		code, cabinet, totalSample, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert package %s: %v", code, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// PackageAvailable reads the availability flag straight from the table.
func PackageAvailable(t testing.TB, conn *db.DB, id int64) bool {
	t.Helper()
	var v string
	if err := conn.QueryRowContext(context.Background(), `SELECT available FROM packages WHERE id = ?`, id).Scan(&v); err != nil {
		t.Fatalf("read package %d: %v", id, err)
	}
	return v == "YES"
}
