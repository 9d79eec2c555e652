package outbound

import (
	"context"
	"time"
)

// WebhookReceiptPort records processed webhook deliveries.
type WebhookReceiptPort interface {
	// IsProcessed reports whether the delivery was already marked processed.
	IsProcessed(ctx context.Context, provider, transactionID string) (bool, error)

	// MarkProcessed marks the delivery processed if it is not already.
	// It returns true when this call created the receipt.
	MarkProcessed(ctx context.Context, provider, transactionID string, ttl time.Duration) (bool, error)
}

// RateCounterPort defines fixed-window counting operations.
type RateCounterPort interface {
	// Increment increments the counter for key and returns the new count.
	// The window TTL is set when the counter is created.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// DistributedLockPort defines cluster-wide mutual exclusion.
type DistributedLockPort interface {
	// Acquire tries to take the lock. It returns a release func and false if held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
