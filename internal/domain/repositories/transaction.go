package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX runs checkpoint statements against either the pool or the transaction
// carried in the context, so the version check and the upsert of one Save
// share a single transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// TxFn is the body of a checkpoint write.
type TxFn func(ctx context.Context) error

// TransactionManager wraps checkpoint writes in a transaction. Nested calls
// join the transaction already in the context.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}

type checkpointTxKey struct{}

// SetTx returns a context carrying tx for the checkpoint repository.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, checkpointTxKey{}, tx)
}

// GetTx returns the transaction in ctx, or nil outside ExecTx.
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(checkpointTxKey{}).(pgx.Tx)
	return tx
}
