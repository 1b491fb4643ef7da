//go:build fts5 || sqlite_fts5

// FTS5 is compiled into mattn/go-sqlite3 only with -tags sqlite_fts5 (or
// fts5); the sqliteFTS search index depends on it.

package storage

import (
	_ "github.com/mattn/go-sqlite3"
)
