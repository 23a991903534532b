package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Tx is an explicit transaction handle. Write operations take a *Tx: nil
// means "no transaction in flight", and the callee begins and owns one.
// A non-nil Tx is reused and stays owned by whoever began it.
type Tx struct {
	tx *sql.Tx
	id string
}

// Begin starts a transaction on db.
func Begin(ctx context.Context, db *sql.DB) (*Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, id: uuid.NewString()}, nil
}

// ID identifies the transaction in logs.
func (t *Tx) ID() string { return t.id }

// Querier returns the statement executor bound to the transaction.
func (t *Tx) Querier() Querier { return t.tx }

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// InTx runs fn inside tx when one is given. Otherwise it begins a
// transaction, runs fn, and commits on success or rolls back on error.
// Only the call that began a transaction ever commits or rolls it back.
func InTx(ctx context.Context, db *sql.DB, tx *Tx, fn func(tx *Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	owned, err := Begin(ctx, db)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = owned.Rollback()
			panic(p)
		}
	}()

	if err := fn(owned); err != nil {
		if rbErr := owned.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (%v)", err, rbErr)
		}
		return err
	}

	return owned.Commit()
}
