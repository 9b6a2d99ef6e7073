package pgutils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WithTx runs fn inside a transaction started with opts (nil for the
// driver default). It commits if fn returns nil and rolls back otherwise,
// including when fn panics.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		r := recover()
		if r != nil {
			_ = tx.Rollback()

			panic(r)
		}
	}()

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(fmt.Errorf("fn: %w", err), fmt.Errorf("rollback: %w", rbErr))
		}

		return fmt.Errorf("fn: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
