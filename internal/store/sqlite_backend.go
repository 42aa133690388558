package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/sirupsen/logrus"
)

const counterSchema = `
CREATE TABLE IF NOT EXISTS counter (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	count      INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteBackend keeps the count in a single-row table
type SQLiteBackend struct {
	db   *sql.DB
	path string
	log  logrus.FieldLogger
}

// OpenSQLiteBackend opens or creates the database at path and applies the schema
func OpenSQLiteBackend(ctx context.Context, path string, log logrus.FieldLogger) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, persistErr("mkdir", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, persistErr("open", err)
	}
	// one connection keeps the pragmas below in effect for every statement
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{
		db:   db,
		path: path,
		log:  log.WithField("backend", "sqlite"),
	}
	if err := b.init(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("%w; also failed to close db: %v", err, cerr)
		}
		return nil, err
	}
	b.log.Infof("[STORE]: opened SQLite counter at %s", path)
	return b, nil
}

func (b *SQLiteBackend) init(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return persistErr("ping", err)
	}
	pragmas := []string{
		"PRAGMA busy_timeout = 30000", // 30 seconds
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return persistErr(fmt.Sprintf("pragma '%s'", pragma), err)
		}
	}
	if _, err := retryableExec(ctx, b.log, b.db, counterSchema); err != nil {
		return persistErr("schema", err)
	}
	return nil
}

// Path returns the database file location
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Load reads the single row. A value that is not a non-negative integer
// (SQLite keeps whatever type was inserted) loads as a corrupt zero.
func (b *SQLiteBackend) Load(ctx context.Context) (Snapshot, error) {
	var raw sql.NullString
	err := retryableQueryRowScan(ctx, b.log, b.db, `SELECT count FROM counter WHERE id = 1`, nil, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Source: SourceMissing}, nil
	}
	if err != nil {
		return Snapshot{}, persistErr("load", err)
	}
	count, perr := strconv.ParseInt(raw.String, 10, 64)
	if !raw.Valid || perr != nil || count < 0 {
		b.log.Warnf("[STORE]: malformed count %q in %s, using 0", raw.String, b.path)
		return Snapshot{Source: SourceCorrupt}, nil
	}
	return Snapshot{Count: count, Source: SourcePersisted}, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, count int64) error {
	_, err := retryableExec(ctx, b.log, b.db, `
		INSERT INTO counter (id, count, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`, count)
	if err != nil {
		return persistErr("save", err)
	}
	b.log.Debugf("[STORE]: saved count=%d to %s", count, b.path)
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
