package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const (
	// TxKey is the context key for the transaction repositories should join.
	TxKey contextKey = "tx"
)

// GetTx retrieves the active transaction from context.
// Returns nil and false if not present.
func GetTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(TxKey).(pgx.Tx)
	return tx, ok
}

// SetTx stores a transaction in context.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// Conn returns the transaction carried by ctx, or fallback when there is none.
func Conn(ctx context.Context, fallback Executor) Executor {
	if tx, ok := GetTx(ctx); ok {
		return tx
	}
	return fallback
}

// InTx runs fn inside a transaction. Repository calls made with the context passed
// to fn join that transaction. Inside an existing transaction a savepoint is used.
func InTx(ctx context.Context, exec Executor, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, Conn(ctx, exec), func(tx pgx.Tx) error {
		return fn(SetTx(ctx, tx))
	})
}
