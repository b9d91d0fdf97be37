package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// TxManager runs a function inside a database transaction
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLTxManager implements TxManager on top of database/sql
type SQLTxManager struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTxManager creates a transaction manager for db
func NewTxManager(db *sql.DB) *SQLTxManager {
	return &SQLTxManager{db: db}
}

// WithIsolation returns a copy of the manager that opens transactions at the
// given isolation level
func (m *SQLTxManager) WithIsolation(level sql.IsolationLevel) *SQLTxManager {
	return &SQLTxManager{db: m.db, opts: &sql.TxOptions{Isolation: level}}
}

// RunInTx executes fn with a transaction attached to ctx. Nested calls join
// the outer transaction. The transaction is committed when fn returns nil and
// rolled back otherwise, including on panic.
func (m *SQLTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
