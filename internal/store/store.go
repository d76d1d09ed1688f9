package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"golang.org/x/xerrors"

	// pgx registers itself as a database/sql driver under "pgx", which lets
	// the rest of this package use the ordinary database/sql/sqlx API
	// instead of pgx's native pool interface.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the durable record described in spec §3 (C1). All mutations go
// through serializable transactions opened with WithTx.
type Store struct {
	db *sqlx.DB
}

// Open connects to databaseURL and applies any pending migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, xerrors.Errorf("opening database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, xerrors.Errorf("pinging database: %w", err)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, xerrors.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return nil, xerrors.Errorf("applying migrations: %w", err)
	}
	return &Store{db: sqlx.NewDb(sqlDB, "pgx")}, nil
}

// NewWithDB wraps an already-open *sql.DB (or a go-sqlmock fake) without
// running migrations, for use in tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "pgx")}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Tx is a handle to one serializable transaction, carrying the methods
// components use to read and mutate pipelines, jobs, and workers. A Tx must
// not be used outside the WithTx callback it was handed to.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside a single SERIALIZABLE transaction, committing on a
// nil return and rolling back otherwise. Every multi-statement operation in
// C2, C3, C5, and C6 is expressed as one WithTx call so that concurrent
// callers observe an atomic view, per spec §4.3/§5.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return xerrors.Errorf("beginning transaction: %w", err)
	}
	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return xerrors.Errorf("rollback after %v failed: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("committing transaction: %w", err)
	}
	return nil
}

// now is overridable in tests that need deterministic timestamps.
var now = time.Now
