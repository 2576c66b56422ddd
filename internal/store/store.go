package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/bulkstep/internal/cascade"
	"github.com/roach88/bulkstep/internal/model"
)

// Store is a SQLite database holding one table per registered entity type.
type Store struct {
	db        *sqlx.DB
	reg       *model.Registry
	logger    *slog.Logger
	simulator *cascade.Simulator
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates or opens a SQLite database at the given path and creates
// the tables of reg that do not exist yet.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Existing tables are left untouched; schema migrations are not attempted.
func Open(path string, reg *model.Registry, opts ...Option) (*Store, error) {
	if reg == nil {
		return nil, model.NewConfigurationError("registry is required")
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, reg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		reg:    reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.simulator = cascade.NewSimulator(reg, s, cascade.WithLogger(s.logger))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database handle.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Registry returns the types the store was opened with.
func (s *Store) Registry() *model.Registry {
	return s.reg
}

// Collect computes the cascade plan for deleting the given seeds without
// deleting anything.
func (s *Store) Collect(ctx context.Context, seeds ...cascade.Seed) (*cascade.Plan, error) {
	return s.simulator.MultiSimulate(ctx, seeds)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates a table for every registered type in registration
// order. The statements are idempotent.
func applySchema(db *sqlx.DB, reg *model.Registry) error {
	for _, t := range reg.Types() {
		ddl, err := createTableSQL(reg, t)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.TableName(), err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
