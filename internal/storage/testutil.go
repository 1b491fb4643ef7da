package storage

import (
	"database/sql"
	"testing"
)

// NewTestDB opens a private in-memory SQLite database that is closed when
// the test finishes.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := OpenSQLite(MemoryPath, true)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
