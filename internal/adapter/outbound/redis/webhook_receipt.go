package redis

import (
	"context"
	"time"

	"github.com/payrecon/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const webhookReceiptKeyPrefix = "payrecon:webhook:receipt:"

// webhookReceiptStore implements outbound.WebhookReceiptPort.
type webhookReceiptStore struct {
	client redis.UniversalClient
}

// NewWebhookReceiptStore creates a new webhook receipt store adapter.
func NewWebhookReceiptStore(client redis.UniversalClient) outbound.WebhookReceiptPort {
	return &webhookReceiptStore{client: client}
}

func receiptKey(provider, transactionID string) string {
	return webhookReceiptKeyPrefix + provider + ":" + transactionID
}

func (s *webhookReceiptStore) IsProcessed(ctx context.Context, provider, transactionID string) (bool, error) {
	n, err := s.client.Exists(ctx, receiptKey(provider, transactionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *webhookReceiptStore) MarkProcessed(ctx context.Context, provider, transactionID string, ttl time.Duration) (bool, error) {
	value := time.Now().UTC().Format(time.RFC3339)
	return s.client.SetNX(ctx, receiptKey(provider, transactionID), value, ttl).Result()
}

// Compile-time check
var _ outbound.WebhookReceiptPort = (*webhookReceiptStore)(nil)
