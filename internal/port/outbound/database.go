package outbound

import (
	"context"
)

// TransactionPort runs a unit of work atomically.
type TransactionPort interface {
	// RunInTransaction executes fn in a transaction carried by the context.
	// Any error returned by fn rolls the transaction back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
