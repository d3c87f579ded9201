package postgres

import (
	"context"
	"database/sql"
	"fmt"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Tx is a transaction carried through the context. Nested WithTx calls open
// savepoints on the same transaction; depth counts the open savepoints.
type Tx struct {
	*sqlx.Tx
	depth int
	ID    string
}

// GetTx returns the transaction carried by ctx
func GetTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

func savepointName(depth int) string {
	return fmt.Sprintf("sp_%d", depth)
}

// BeginTx starts a transaction, or a savepoint when ctx already carries one.
// New transactions get SET LOCAL lock_timeout so that a stuck sequence or
// payment row lock surfaces as a retryable error.
func (db *DB) BeginTx(ctx context.Context) (context.Context, *Tx, error) {
	if tx, ok := GetTx(ctx); ok {
		sp := savepointName(tx.depth + 1)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return ctx, nil, MapError(err, "create savepoint")
		}
		tx.depth++
		db.logger.Debugw("savepoint opened", "tx_id", tx.ID, "savepoint", sp)
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return ctx, nil, MapError(err, "begin transaction")
	}

	if db.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", db.lockTimeout.Milliseconds())
		if _, err := sqlxTx.ExecContext(ctx, stmt); err != nil {
			_ = sqlxTx.Rollback()
			return ctx, nil, MapError(err, "set lock timeout")
		}
	}

	tx := &Tx{Tx: sqlxTx, ID: types.GenerateUUID()}
	db.logger.Debugw("transaction started", "tx_id", tx.ID)
	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

// CommitTx commits the innermost open level of the transaction in ctx
func (db *DB) CommitTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("no transaction in context").Mark(ierr.ErrSystem)
	}

	if tx.depth > 0 {
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName(tx.depth)); err != nil {
			return MapError(err, "release savepoint")
		}
		tx.depth--
		return nil
	}

	if err := tx.Commit(); err != nil {
		return MapError(err, "commit transaction")
	}
	db.logger.Debugw("transaction committed", "tx_id", tx.ID)
	return nil
}

// RollbackTx undoes the innermost open level of the transaction in ctx
func (db *DB) RollbackTx(ctx context.Context) error {
	tx, ok := GetTx(ctx)
	if !ok {
		return ierr.NewError("no transaction in context").Mark(ierr.ErrSystem)
	}

	if tx.depth > 0 {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName(tx.depth)); err != nil {
			return MapError(err, "rollback to savepoint")
		}
		tx.depth--
		return nil
	}

	if err := tx.Rollback(); err != nil {
		return MapError(err, "rollback transaction")
	}
	db.logger.Debugw("transaction rolled back", "tx_id", tx.ID)
	return nil
}

// WithTx runs fn in a transaction. Row locks taken by fn are held until it
// returns, so fn must not call payment providers.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			db.logger.Errorw("panic in transaction", "tx_id", tx.ID, "panic", r)
			_ = db.RollbackTx(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := db.RollbackTx(ctx); rbErr != nil {
			db.logger.Errorw("rollback failed", "tx_id", tx.ID, "error", rbErr, "cause", err)
		}
		return err
	}

	return db.CommitTx(ctx)
}
