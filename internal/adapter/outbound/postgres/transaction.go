package postgres

import (
	"context"

	"github.com/payrecon/server/internal/port/outbound"
	"gorm.io/gorm"
)

// txContextKey is used to store the transaction in context.
type txContextKeyType struct{}

var txContextKey = txContextKeyType{}

// transactionAdapter implements outbound.TransactionPort.
type transactionAdapter struct {
	db *gorm.DB
}

// NewTransactionAdapter creates a new transaction adapter.
func NewTransactionAdapter(db *gorm.DB) outbound.TransactionPort {
	return &transactionAdapter{db: db}
}

func (a *transactionAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey).(*gorm.DB); ok {
		// Already inside a transaction: join it.
		return fn(ctx)
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txContextKey, tx)
		return fn(txCtx)
	})
}

// conn returns the transaction carried by ctx, or db bound to ctx.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Compile-time check
var _ outbound.TransactionPort = (*transactionAdapter)(nil)
