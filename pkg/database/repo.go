// Package database holds the control plane Postgres database: permission
// grants, the import audit log and the http cache.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/lib/pq"
	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qustavo/sqlhooks/v2"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const driverName = "postgres-hooked"

var registerDriver sync.Once

type Transacter interface {
	Commit() error
	Rollback() error
}

type Querier interface {
	gensql.Querier
	WithTx(tx *sql.Tx) *gensql.Queries
}

type Repo struct {
	Querier Querier
	db      *sql.DB
}

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

// Metrics returns the query metrics collected for all repos.
func (r *Repo) Metrics() []prometheus.Collector {
	return queryMetrics.Collectors()
}

// Migrate applies the embedded migrations.
func (r *Repo) Migrate(ctx context.Context) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, r.db, migrations)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	return nil
}

// WithTx returns a function that starts a transaction and hands out a
// querier bound to it, narrowed to the interface T used by a storage.
func WithTx[T any](r *Repo) func() (T, Transacter, error) {
	return func() (T, Transacter, error) {
		var zero T

		tx, err := r.db.Begin()
		if err != nil {
			return zero, nil, fmt.Errorf("begin transaction: %w", err)
		}

		q, ok := any(r.Querier.WithTx(tx)).(T)
		if !ok {
			_ = tx.Rollback()
			return zero, nil, fmt.Errorf("querier does not implement %T", zero)
		}

		return q, tx, nil
	}
}

// NewFromDB wraps an already opened database, migrations are not run.
func NewFromDB(db *sql.DB) *Repo {
	return &Repo{
		Querier: gensql.New(db),
		db:      db,
	}
}

func New(dbConnDSN string, maxIdleConn, maxOpenConn int) (*Repo, error) {
	registerDriver.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&pq.Driver{}, queryMetrics))
	})

	db, err := sql.Open(driverName, dbConnDSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	db.SetMaxIdleConns(maxIdleConn)
	db.SetMaxOpenConns(maxOpenConn)

	err = db.Ping()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := NewFromDB(db)

	err = repo.Migrate(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return repo, nil
}
