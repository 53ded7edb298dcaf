// Package sqlitedb manages the SQLite databases served by the application.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"

	JournalModeWAL = "wal"

	// MigrationsTable is where goose records applied migrations.
	MigrationsTable = "goose_db_version"
)

var ErrImmutable = errors.New("database is immutable")

// Querier is implemented by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	name      string
	path      string
	immutable bool
	db        *sql.DB

	// SQLite only allows a single writer, so we serialize writes within the
	// process instead of relying on the busy timeout alone.
	writeLock sync.Mutex
}

func dsn(path string, immutable bool) string {
	params := url.Values{}

	if immutable {
		params.Set("mode", "ro")
		params.Set("immutable", "1")
	} else {
		params.Add("_pragma", "busy_timeout(5000)")
		params.Add("_pragma", "synchronous(NORMAL)")
		params.Set("_txlock", "immediate")
	}

	return "file:" + filepath.Clean(path) + "?" + params.Encode()
}

// Open opens the database file at path, immutable databases are opened
// read-only and are never written to.
func Open(name, path string, immutable bool) (*DB, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("database name is required")
	}

	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required for %s", name)
	}

	db, err := sql.Open(driverName, dsn(path, immutable))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", name, err)
	}

	err = db.Ping()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database %s: %w", name, err)
	}

	return &DB{
		name:      name,
		path:      path,
		immutable: immutable,
		db:        db,
	}, nil
}

func (d *DB) Name() string {
	return d.name
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) IsMutable() bool {
	return !d.immutable
}

// SQL returns the underlying connection pool, it must only be used for reads.
func (d *DB) SQL() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// JournalMode returns the current journal mode in lower case, e.g. "wal".
func (d *DB) JournalMode(ctx context.Context) (string, error) {
	var mode string

	err := d.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		return "", fmt.Errorf("reading journal mode of %s: %w", d.name, err)
	}

	return strings.ToLower(mode), nil
}

// IsWAL reports whether the database is in write-ahead log mode.
func (d *DB) IsWAL(ctx context.Context) (bool, error) {
	mode, err := d.JournalMode(ctx)
	if err != nil {
		return false, err
	}

	return mode == JournalModeWAL, nil
}

// EnableWAL switches the database to write-ahead log mode, the setting is
// persistent so it only has to be done once per database file.
func (d *DB) EnableWAL(ctx context.Context) error {
	if d.immutable {
		return fmt.Errorf("enabling wal on %s: %w", d.name, ErrImmutable)
	}

	d.writeLock.Lock()
	defer d.writeLock.Unlock()

	var mode string

	err := d.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode)
	if err != nil {
		return fmt.Errorf("enabling wal on %s: %w", d.name, err)
	}

	if strings.ToLower(mode) != JournalModeWAL {
		return fmt.Errorf("enabling wal on %s: journal mode is %s", d.name, mode)
	}

	return nil
}

// Write runs fn in a transaction, writes to the same database are
// serialized.
func (d *DB) Write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if d.immutable {
		return fmt.Errorf("writing to %s: %w", d.name, ErrImmutable)
	}

	d.writeLock.Lock()
	defer d.writeLock.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction on %s: %w", d.name, err)
	}

	err = fn(tx)
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("rollback on %s: %w", d.name, rerr))
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit on %s: %w", d.name, err)
	}

	return nil
}

// Migrate applies the goose migrations found at the root of fsys.
func (d *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	if d.immutable {
		return fmt.Errorf("migrating %s: %w", d.name, ErrImmutable)
	}

	d.writeLock.Lock()
	defer d.writeLock.Unlock()

	provider, err := goose.NewProvider(goose.DialectSQLite3, d.db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider for %s: %w", d.name, err)
	}

	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrating %s: %w", d.name, err)
	}

	return nil
}
