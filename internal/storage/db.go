// Package storage holds the persistence primitives shared by km nodes:
// SQLite and Postgres connections, the km_content table, blob storage for
// original files and the float32 vector encoding.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/squirrel"
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrDatabaseMissing is returned when a database file does not exist and
	// the caller asked not to create it.
	ErrDatabaseMissing = errors.New("database does not exist")

	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported indicates a configured backend this build cannot open.
	ErrUnsupported = errors.New("unsupported backend")
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	Name        string
	Placeholder squirrel.PlaceholderFormat
	BlobType    string
}

var (
	SQLite   = Dialect{Name: "sqlite", Placeholder: squirrel.Question, BlobType: "BLOB"}
	Postgres = Dialect{Name: "postgres", Placeholder: squirrel.Dollar, BlobType: "BYTEA"}
)

// Builder returns a squirrel statement builder using the dialect's placeholders.
func (d Dialect) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

var vecOnce sync.Once

// InitVectorExtension registers sqlite-vec with every future SQLite
// connection. Safe to call repeatedly.
func InitVectorExtension() {
	vecOnce.Do(sqlite_vec.Auto)
}

// OpenSQLite opens the SQLite database at path. When create is false and
// the file does not exist, ErrDatabaseMissing is returned instead of
// silently creating an empty database.
func OpenSQLite(path string, create bool) (*sql.DB, error) {
	dsn := path
	if path != MemoryPath {
		_, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if !create {
				return nil, fmt.Errorf("%w: %s", ErrDatabaseMissing, path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("failed to stat database %s: %w", path, err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	InitVectorExtension()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return db, nil
}

// OpenPostgres opens and pings a Postgres database.
func OpenPostgres(connectionString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}
