package security

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/payrecon/server/internal/port/outbound"
)

const rateLimitKeyPrefix = "payment:"

// Config holds guard policy.
type Config struct {
	RateLimitWindow time.Duration
	ReceiptTTL      time.Duration
}

// DefaultConfig returns the default guard policy.
func DefaultConfig() *Config {
	return &Config{
		RateLimitWindow: time.Hour,
		ReceiptTTL:      72 * time.Hour,
	}
}

// RateLimitDecision is the outcome of a rate limit check.
type RateLimitDecision struct {
	Allowed bool
	Count   int64
}

// Guard groups the cache-backed security checks used by the payment core.
type Guard struct {
	receipts outbound.WebhookReceiptPort
	counter  outbound.RateCounterPort
	config   *Config
}

// NewGuard creates a new security guard.
func NewGuard(receipts outbound.WebhookReceiptPort, counter outbound.RateCounterPort, config *Config) *Guard {
	if config == nil {
		config = DefaultConfig()
	}
	return &Guard{
		receipts: receipts,
		counter:  counter,
		config:   config,
	}
}

// CheckRateLimit counts one payment attempt for the user and denies once
// the count exceeds maxPerWindow.
func (g *Guard) CheckRateLimit(ctx context.Context, userID int64, maxPerWindow int64) (RateLimitDecision, error) {
	key := rateLimitKeyPrefix + strconv.FormatInt(userID, 10)
	count, err := g.counter.Increment(ctx, key, g.config.RateLimitWindow)
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("increment rate counter: %w", err)
	}
	return RateLimitDecision{
		Allowed: count <= maxPerWindow,
		Count:   count,
	}, nil
}

// CheckReplay records the delivery as processed. It returns true when the
// delivery had already been recorded.
func (g *Guard) CheckReplay(ctx context.Context, transactionID, provider string) (bool, error) {
	created, err := g.receipts.MarkProcessed(ctx, provider, transactionID, g.config.ReceiptTTL)
	if err != nil {
		return false, fmt.Errorf("mark webhook receipt: %w", err)
	}
	return !created, nil
}

// IsProcessed reports whether a delivery was already recorded, without recording it.
func (g *Guard) IsProcessed(ctx context.Context, transactionID, provider string) (bool, error) {
	seen, err := g.receipts.IsProcessed(ctx, provider, transactionID)
	if err != nil {
		return false, fmt.Errorf("read webhook receipt: %w", err)
	}
	return seen, nil
}

// RequireSecondaryAuth returns true when amount exceeds the policy threshold.
// A non-positive threshold disables the policy.
func RequireSecondaryAuth(amount, threshold int64) bool {
	return threshold > 0 && amount > threshold
}
