package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/kernel-memory/internal/config"
)

// Content is one record of a node's content index.
type Content struct {
	ID        string            `json:"id" yaml:"id"`
	Content   string            `json:"content" yaml:"content"`
	Title     string            `json:"title,omitempty" yaml:"title,omitempty"`
	MimeType  string            `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Tags      map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

const contentTable = "km_content"

var contentColumns = []string{"Id", "Content", "Title", "MimeType", "Tags", "CreatedAt", "UpdatedAt"}

// contentSchema is valid for both SQLite and Postgres. Timestamps are stored
// as RFC3339Nano text in UTC.
const contentSchema = `
CREATE TABLE IF NOT EXISTS km_content (
    Id        TEXT PRIMARY KEY,
    Content   TEXT NOT NULL,
    Title     TEXT NOT NULL DEFAULT '',
    MimeType  TEXT NOT NULL DEFAULT '',
    Tags      TEXT NOT NULL DEFAULT '{}',
    CreatedAt TEXT NOT NULL,
    UpdatedAt TEXT NOT NULL
)`

// ContentIndex is the primary store of a node's raw content.
type ContentIndex struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool
	now     func() time.Time
}

// NewContentIndex wraps an existing connection and ensures the schema exists.
// The caller keeps ownership of db.
func NewContentIndex(ctx context.Context, db *sql.DB, dialect Dialect) (*ContentIndex, error) {
	if _, err := db.ExecContext(ctx, contentSchema); err != nil {
		return nil, fmt.Errorf("failed to create content schema: %w", err)
	}
	return &ContentIndex{db: db, dialect: dialect, now: time.Now}, nil
}

// OpenContentIndex opens the database described by cfg. With create false a
// missing SQLite file yields ErrDatabaseMissing.
func OpenContentIndex(ctx context.Context, cfg config.ContentIndexConfig, create bool) (*ContentIndex, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch c := cfg.(type) {
	case *config.SqliteContentIndexConfig:
		db, err = OpenSQLite(c.Path, create)
		dialect = SQLite
	case *config.PostgresContentIndexConfig:
		db, err = OpenPostgres(c.ConnectionString)
		dialect = Postgres
	default:
		return nil, fmt.Errorf("%w: content index %T", ErrUnsupported, cfg)
	}
	if err != nil {
		return nil, err
	}

	idx, err := NewContentIndex(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

// DB exposes the underlying connection so search indexes can share it.
func (c *ContentIndex) DB() *sql.DB { return c.db }

// Upsert inserts or replaces a record. CreatedAt is preserved across
// updates; UpdatedAt is always refreshed. The stored record is returned.
func (c *ContentIndex) Upsert(ctx context.Context, content *Content) (*Content, error) {
	if content.ID == "" {
		return nil, errors.New("content id is required")
	}

	tags, err := encodeTags(content.Tags)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	created := content.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = c.dialect.Builder().
		Insert(contentTable).
		Columns(contentColumns...).
		Values(
			content.ID,
			content.Content,
			content.Title,
			content.MimeType,
			tags,
			formatTime(created),
			formatTime(now),
		).
		Suffix("ON CONFLICT (Id) DO UPDATE SET " +
			"Content = excluded.Content, Title = excluded.Title, MimeType = excluded.MimeType, " +
			"Tags = excluded.Tags, UpdatedAt = excluded.UpdatedAt").
		RunWith(c.db).
		ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert content %s: %w", content.ID, err)
	}

	return c.Get(ctx, content.ID)
}

// Get returns the record with id or ErrNotFound.
func (c *ContentIndex) Get(ctx context.Context, id string) (*Content, error) {
	row := c.dialect.Builder().
		Select(contentColumns...).
		From(contentTable).
		Where(sq.Eq{"Id": id}).
		RunWith(c.db).
		QueryRowContext(ctx)

	content, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: content %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content %s: %w", id, err)
	}
	return content, nil
}

// getManyBatch bounds the ids bound into one IN clause. SQLite rejects
// statements with more than 32766 variables.
const getManyBatch = 500

// GetMany returns the records that exist among ids, keyed by id.
func (c *ContentIndex) GetMany(ctx context.Context, ids []string) (map[string]*Content, error) {
	out := make(map[string]*Content, len(ids))
	for start := 0; start < len(ids); start += getManyBatch {
		end := min(start+getManyBatch, len(ids))
		if err := c.getBatch(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *ContentIndex) getBatch(ctx context.Context, ids []string, out map[string]*Content) error {
	rows, err := c.dialect.Builder().
		Select(contentColumns...).
		From(contentTable).
		Where(sq.Eq{"Id": ids}).
		RunWith(c.db).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to query content: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return fmt.Errorf("failed to scan content: %w", err)
		}
		out[content.ID] = content
	}
	return rows.Err()
}

// Delete removes a record and reports whether it existed.
func (c *ContentIndex) Delete(ctx context.Context, id string) (bool, error) {
	res, err := c.dialect.Builder().
		Delete(contentTable).
		Where(sq.Eq{"Id": id}).
		RunWith(c.db).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to delete content %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete content %s: %w", id, err)
	}
	return n > 0, nil
}

// List returns up to take records ordered by id, skipping the first skip.
// A non-positive take returns everything after skip.
func (c *ContentIndex) List(ctx context.Context, skip, take int) ([]*Content, error) {
	query := c.dialect.Builder().
		Select(contentColumns...).
		From(contentTable).
		OrderBy("Id")
	switch {
	case take > 0:
		query = query.Limit(uint64(take))
	case skip > 0:
		// SQLite rejects OFFSET without LIMIT
		query = query.Limit(math.MaxInt64)
	}
	if skip > 0 {
		query = query.Offset(uint64(skip))
	}

	rows, err := query.RunWith(c.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	defer rows.Close()

	var out []*Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (c *ContentIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := c.dialect.Builder().
		Select("COUNT(*)").
		From(contentTable).
		RunWith(c.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}
	return n, nil
}

// Close releases the connection when the index opened it.
func (c *ContentIndex) Close() error {
	if c.ownsDB {
		return c.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContent(s scanner) (*Content, error) {
	var (
		content          Content
		tags             string
		created, updated string
	)
	if err := s.Scan(&content.ID, &content.Content, &content.Title, &content.MimeType, &tags, &created, &updated); err != nil {
		return nil, err
	}
	if tags != "" && tags != "{}" {
		if err := json.Unmarshal([]byte(tags), &content.Tags); err != nil {
			return nil, fmt.Errorf("invalid tags for %s: %w", content.ID, err)
		}
	}
	var err error
	if content.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("invalid CreatedAt for %s: %w", content.ID, err)
	}
	if content.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("invalid UpdatedAt for %s: %w", content.ID, err)
	}
	return &content, nil
}

func encodeTags(tags map[string]string) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
