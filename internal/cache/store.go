// Package cache persists generated embeddings so identical text is embedded
// once per provider, model and dimensionality.
//
// Entries live in the embeddings_cache table of a SQLite or Postgres
// database, fronted by an in-process otter cache.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/maypok86/otter"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

const (
	table = "embeddings_cache"

	// timestampLayout is fixed width so stored timestamps compare lexically.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"

	defaultL1Capacity = 10_000
	defaultL1TTL      = time.Hour
)

// Entry is a cached embedding. TokenCount is nil when the provider does not
// report usage.
type Entry struct {
	Vector     []float32
	TokenCount *int
	Timestamp  time.Time
}

// Options tune an EmbeddingsStore.
type Options struct {
	AllowRead  bool
	AllowWrite bool
	L1Capacity int
	L1TTL      time.Duration
}

// EmbeddingsStore is a two-level embeddings cache.
type EmbeddingsStore struct {
	db      *sql.DB
	dialect storage.Dialect
	l1      otter.Cache[Key, Entry]
	opts    Options
	ownsDB  bool
	now     func() time.Time
}

func schema(d storage.Dialect) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS embeddings_cache (
    provider    TEXT NOT NULL,
    model       TEXT NOT NULL,
    dimensions  INTEGER NOT NULL,
    text_hash   TEXT NOT NULL,
    vector      %s NOT NULL,
    token_count INTEGER,
    timestamp   TEXT NOT NULL,
    PRIMARY KEY (provider, model, dimensions, text_hash)
)`, d.BlobType)
}

// NewEmbeddingsStore wraps an open connection and ensures the schema exists.
func NewEmbeddingsStore(ctx context.Context, db *sql.DB, dialect storage.Dialect, opts Options) (*EmbeddingsStore, error) {
	if opts.L1Capacity <= 0 {
		opts.L1Capacity = defaultL1Capacity
	}
	if opts.L1TTL <= 0 {
		opts.L1TTL = defaultL1TTL
	}

	if _, err := db.ExecContext(ctx, schema(dialect)); err != nil {
		return nil, fmt.Errorf("failed to create embeddings cache schema: %w", err)
	}

	l1, err := otter.MustBuilder[Key, Entry](opts.L1Capacity).
		WithTTL(opts.L1TTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory cache: %w", err)
	}

	return &EmbeddingsStore{
		db:      db,
		dialect: dialect,
		l1:      l1,
		opts:    opts,
		now:     time.Now,
	}, nil
}

// OpenEmbeddingsStore opens the cache described by cfg. SQLite databases
// are created on first use.
func OpenEmbeddingsStore(ctx context.Context, cfg *config.CacheConfig) (*EmbeddingsStore, error) {
	var (
		db      *sql.DB
		dialect storage.Dialect
		err     error
	)
	switch cfg.Type {
	case config.CacheTypeSqlite:
		db, err = storage.OpenSQLite(cfg.Path, true)
		dialect = storage.SQLite
	case config.CacheTypePostgres:
		db, err = storage.OpenPostgres(cfg.ConnectionString)
		dialect = storage.Postgres
	default:
		return nil, fmt.Errorf("%w: cache type %q", storage.ErrUnsupported, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	store, err := NewEmbeddingsStore(ctx, db, dialect, Options{
		AllowRead:  cfg.AllowRead,
		AllowWrite: cfg.AllowWrite,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// CanRead reports whether lookups are enabled.
func (s *EmbeddingsStore) CanRead() bool { return s.opts.AllowRead }

// CanWrite reports whether new entries are stored.
func (s *EmbeddingsStore) CanWrite() bool { return s.opts.AllowWrite }

// Get looks key up, first in memory then in the database. The boolean is
// false on a miss or when reads are disabled.
func (s *EmbeddingsStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	if !s.opts.AllowRead {
		return Entry{}, false, nil
	}
	if e, ok := s.l1.Get(key); ok {
		return e, true, nil
	}

	var (
		blob       []byte
		tokenCount sql.NullInt64
		ts         string
	)
	err := s.dialect.Builder().
		Select("vector", "token_count", "timestamp").
		From(table).
		Where(sq.Eq{
			"provider":   key.Provider,
			"model":      key.Model,
			"dimensions": key.Dimensions,
			"text_hash":  key.TextHash,
		}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&blob, &tokenCount, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read embeddings cache: %w", err)
	}

	vec, err := storage.DeserializeVector(blob)
	if err != nil {
		return Entry{}, false, err
	}
	e := Entry{Vector: vec}
	if tokenCount.Valid {
		n := int(tokenCount.Int64)
		e.TokenCount = &n
	}
	if t, err := time.Parse(timestampLayout, ts); err == nil {
		e.Timestamp = t
	}

	s.l1.Set(key, e)
	return e, true, nil
}

// Put stores an entry unless writes are disabled. An existing row for the
// same key is left untouched.
func (s *EmbeddingsStore) Put(ctx context.Context, key Key, e Entry) error {
	if !s.opts.AllowWrite {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	var tokenCount any
	if e.TokenCount != nil {
		tokenCount = *e.TokenCount
	}

	_, err := s.dialect.Builder().
		Insert(table).
		Columns("provider", "model", "dimensions", "text_hash", "vector", "token_count", "timestamp").
		Values(
			key.Provider,
			key.Model,
			key.Dimensions,
			key.TextHash,
			storage.SerializeVector(e.Vector),
			tokenCount,
			e.Timestamp.UTC().Format(timestampLayout),
		).
		Suffix("ON CONFLICT (provider, model, dimensions, text_hash) DO NOTHING").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to write embeddings cache: %w", err)
	}

	s.l1.Set(key, e)
	return nil
}

// Count returns the number of persisted entries.
func (s *EmbeddingsStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.dialect.Builder().
		Select("COUNT(*)").
		From(table).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings cache: %w", err)
	}
	return n, nil
}

// Close stops the in-memory cache and closes the database when owned.
func (s *EmbeddingsStore) Close() error {
	s.l1.Close()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
