package payment

import (
	"errors"

	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/port/outbound"
)

var (
	// ErrSignatureInvalid is returned when a webhook signature does not verify.
	ErrSignatureInvalid = security.ErrSignatureInvalid

	// ErrReplayedEvent marks a delivery that was already processed.
	// Ingest reports it as an outcome, never as a failure.
	ErrReplayedEvent = errors.New("webhook event already processed")

	// ErrUnknownIntent is returned when no intent matches a provider reference.
	ErrUnknownIntent = errors.New("unknown payment intent")

	// ErrIllegalTransition is returned when a terminal intent is asked to move
	// to a different status.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrProviderUnavailable is returned when a provider is not configured or
	// could not be reached.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrPlanUnavailable is returned when a plan does not exist or is not on sale.
	ErrPlanUnavailable = errors.New("plan unavailable")

	// ErrActivationFailure is returned when entitlement activation failed and
	// the completion was rolled back.
	ErrActivationFailure = errors.New("subscription activation failed")

	// ErrRateLimited is returned when a user exceeded the payment attempt limit.
	ErrRateLimited = errors.New("too many payment attempts")

	// ErrMalformedEvent is returned for deliveries that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed webhook event")

	// ErrEventIgnored is returned by gateways for event types the core does not act on.
	ErrEventIgnored = outbound.ErrEventIgnored

	// ErrIntentNotFound is returned when an intent ID does not exist.
	ErrIntentNotFound = errors.New("payment intent not found")

	// ErrForbidden is returned when a user reads another user's intent.
	ErrForbidden = errors.New("forbidden")
)
