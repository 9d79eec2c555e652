package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"github.com/payrecon/server/internal/utils/requestctx"
	"go.uber.org/zap"
)

// IngestionService turns verified provider webhooks into status transitions.
type IngestionService struct {
	gateways    outbound.PaymentGatewayRegistryPort
	intents     outbound.PaymentIntentDatabasePort
	guard       *security.Guard
	transitions *Transitioner
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewIngestionService creates a new webhook ingestion service.
func NewIngestionService(
	gateways outbound.PaymentGatewayRegistryPort,
	intents outbound.PaymentIntentDatabasePort,
	guard *security.Guard,
	transitions *Transitioner,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		gateways:    gateways,
		intents:     intents,
		guard:       guard,
		transitions: transitions,
		metrics:     m,
		logger:      logger,
	}
}

// Ingest processes one webhook delivery. payload must be the raw request body.
//
// Benign outcomes (replay, unknown intent, no-op) are reported in the result.
// Errors are ErrSignatureInvalid, ErrMalformedEvent, ErrIllegalTransition,
// ErrActivationFailure, ErrProviderUnavailable or a wrapped storage failure.
func (s *IngestionService) Ingest(ctx context.Context, provider model.Provider, payload []byte, signature string) (*model.IngestResult, error) {
	result, err := s.ingest(ctx, provider, payload, signature)
	outcome := outcomeLabel(result, err)
	s.metrics.RecordWebhook(provider.String(), outcome)
	return result, err
}

func (s *IngestionService) ingest(ctx context.Context, provider model.Provider, payload []byte, signature string) (*model.IngestResult, error) {
	gateway, err := s.gateways.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	log := s.logger.With(requestctx.Fields(ctx)...).With(zap.String("provider", provider.String()))

	if err := gateway.VerifyWebhook(payload, signature); err != nil {
		log.Warn("webhook signature rejected",
			zap.String("event", "webhook_signature_invalid"),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return nil, ErrSignatureInvalid
	}

	event, err := gateway.ParseWebhook(payload)
	if err != nil {
		if errors.Is(err, ErrEventIgnored) {
			return &model.IngestResult{Outcome: model.IngestOutcomeIgnored, Ack: gateway.Ack()}, nil
		}
		log.Warn("malformed webhook", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.TransactionID == "" || event.Reference == "" {
		return nil, fmt.Errorf("%w: missing transaction id or reference", ErrMalformedEvent)
	}
	log = log.With(
		zap.String("transaction_id", event.TransactionID),
		zap.String("reference", event.Reference),
	)

	seen, err := s.guard.IsProcessed(ctx, event.TransactionID, provider.String())
	if err != nil {
		log.Warn("receipt lookup failed, continuing", zap.Error(err))
	} else if seen {
		log.Debug("webhook replay short-circuited")
		return &model.IngestResult{Outcome: model.IngestOutcomeReplayed, Ack: gateway.Ack()}, nil
	}

	intent, err := s.intents.FindByProviderReference(ctx, provider, event.Reference)
	if err != nil {
		return nil, fmt.Errorf("find intent: %w", err)
	}
	if intent == nil {
		log.Warn("webhook for unknown intent", zap.String("event", "webhook_unknown_intent"))
		return &model.IngestResult{Outcome: model.IngestOutcomeUnknownIntent, Ack: gateway.Ack()}, nil
	}
	log = log.With(zap.String("intent_id", intent.ID.String()))

	target, ok := gateway.MapStatus(event)
	if !ok {
		log.Warn("unmapped provider status", zap.String("provider_status", event.RawStatus))
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedEvent, event.RawStatus)
	}

	patch := event.Metadata.Merge(model.Metadata{
		model.MetaProviderStatus:        event.RawStatus,
		model.MetaProviderTransactionID: event.TransactionID,
		model.MetaResolvedBy:            string(SourceWebhook),
	})
	if target == model.PaymentStatusCompleted && !amountMatches(intent, event) {
		log.Error("webhook amount does not match intent",
			zap.String("event", "webhook_amount_mismatch"),
			zap.Int64("expected_amount", intent.Amount),
			zap.Int64("reported_amount", event.Amount),
			zap.String("expected_currency", intent.Currency),
			zap.String("reported_currency", event.Currency),
		)
		target = model.PaymentStatusFailed
		patch[model.MetaFailureReason] = ReasonAmountMismatch
	}

	res, err := s.transitions.Apply(ctx, intent, target, patch, SourceWebhook)
	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			s.metrics.RecordIllegalTransition(provider.String(), string(SourceWebhook))
			log.Error("webhook attempted to change a terminal intent",
				zap.String("event", "illegal_transition"),
				zap.String("current_status", intent.Status.String()),
				zap.String("target_status", target.String()),
			)
		}
		return nil, err
	}

	if replayed, err := s.guard.CheckReplay(ctx, event.TransactionID, provider.String()); err != nil {
		log.Warn("mark webhook receipt failed", zap.Error(err))
	} else if replayed {
		log.Debug("webhook receipt already recorded by a concurrent delivery")
	}

	outcome := model.IngestOutcomeNoop
	if res.Applied {
		outcome = model.IngestOutcomeProcessed
	}
	id := intent.ID
	return &model.IngestResult{
		Outcome:  outcome,
		IntentID: &id,
		Status:   res.Status,
		Ack:      gateway.Ack(),
	}, nil
}

// amountMatches compares the echoed amount and currency, when the provider
// reports them, against the intent snapshot.
func amountMatches(intent *model.PaymentIntent, event *model.ProviderEvent) bool {
	if event.Amount != 0 && event.Amount != intent.Amount {
		return false
	}
	if event.Currency != "" && !strings.EqualFold(event.Currency, intent.Currency) {
		return false
	}
	return true
}

func outcomeLabel(result *model.IngestResult, err error) string {
	switch {
	case err == nil && result != nil:
		return string(result.Outcome)
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrActivationFailure):
		return "activation_failure"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "error"
	}
}
