package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/roach88/bulkstep/internal/bulk"
)

type txContextKey struct{}

// txFrom returns the transaction carried by ctx, if any.
func txFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return tx, ok && tx != nil
}

// conn returns the ambient transaction or the database.
func (s *Store) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.db
}

// Begin implements bulk.Transactor. The returned context carries the
// transaction. A Begin on a context that already carries one opens a
// savepoint within it.
func (s *Store) Begin(ctx context.Context) (context.Context, bulk.Tx, error) {
	if tx, ok := txFrom(ctx); ok {
		name := "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return ctx, nil, fmt.Errorf("savepoint: %w", err)
		}
		return ctx, &savepoint{tx: tx, name: name}, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, txContextKey{}, tx), &transaction{tx: tx}, nil
}

// within runs fn in a transaction of its own, nested as a savepoint when
// ctx already carries one.
func (s *Store) within(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

type transaction struct {
	tx     *sqlx.Tx
	closed bool
}

func (t *transaction) Commit() error {
	if t.closed {
		return errors.New("transaction already closed")
	}
	t.closed = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *transaction) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

type savepoint struct {
	tx     *sqlx.Tx
	name   string
	closed bool
}

func (sp *savepoint) Commit() error {
	if sp.closed {
		return errors.New("savepoint already released")
	}
	sp.closed = true
	if _, err := sp.tx.Exec("RELEASE SAVEPOINT " + sp.name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (sp *savepoint) Rollback() error {
	if sp.closed {
		return nil
	}
	sp.closed = true
	if _, err := sp.tx.Exec("ROLLBACK TO SAVEPOINT " + sp.name); err != nil {
		return fmt.Errorf("rollback to savepoint: %w", err)
	}
	if _, err := sp.tx.Exec("RELEASE SAVEPOINT " + sp.name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
