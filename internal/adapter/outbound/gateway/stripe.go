package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeGateway implements the Stripe PaymentIntent flow.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a Stripe gateway with its own API client.
func NewStripeGateway(config *StripeConfig) *StripeGateway {
	return &StripeGateway{
		api:           client.New(config.SecretKey, nil),
		webhookSecret: config.WebhookSecret,
	}
}

// Provider returns the provider name.
func (g *StripeGateway) Provider() model.Provider {
	return model.ProviderStripe
}

// CreateCheckout creates a Stripe PaymentIntent and returns its client secret.
func (g *StripeGateway) CreateCheckout(ctx context.Context, intent *model.PaymentIntent, plan *model.Plan) (*model.CheckoutArtifact, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(intent.Amount),
		Currency: stripe.String(strings.ToLower(intent.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(plan.Name),
	}
	params.Context = ctx
	params.AddMetadata("intent_id", intent.ID.String())
	params.AddMetadata("plan_id", plan.ID)
	params.SetIdempotencyKey(intent.ID.String())

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &model.CheckoutArtifact{
		Provider:          model.ProviderStripe,
		ProviderReference: pi.ID,
		ClientSecret:      pi.ClientSecret,
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header over the raw body.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) error {
	if err := webhook.ValidatePayload(payload, signature, g.webhookSecret); err != nil {
		return fmt.Errorf("%w: %w", security.ErrSignatureInvalid, err)
	}
	return nil
}

// ParseWebhook decodes a verified event. Only payment_intent events are relevant.
func (g *StripeGateway) ParseWebhook(payload []byte) (*model.ProviderEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return nil, outbound.ErrEventIgnored
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, errors.New("event has no data")
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	ev := paymentIntentEvent(&pi)
	ev.TransactionID = event.ID
	ev.Metadata["stripe_event_type"] = string(event.Type)
	return ev, nil
}

// MapStatus maps PaymentIntent statuses to canonical statuses.
func (g *StripeGateway) MapStatus(event *model.ProviderEvent) (model.PaymentStatus, bool) {
	switch event.RawStatus {
	case string(stripe.PaymentIntentStatusSucceeded):
		return model.PaymentStatusCompleted, true
	case string(stripe.PaymentIntentStatusProcessing),
		string(stripe.PaymentIntentStatusRequiresPaymentMethod),
		string(stripe.PaymentIntentStatusRequiresConfirmation),
		string(stripe.PaymentIntentStatusRequiresCapture):
		return model.PaymentStatusPending, true
	case string(stripe.PaymentIntentStatusRequiresAction):
		return model.PaymentStatusAwaitingSecondaryAuth, true
	case string(stripe.PaymentIntentStatusCanceled):
		return model.PaymentStatusCancelled, true
	default:
		return "", false
	}
}

// LookupStatus retrieves the PaymentIntent from Stripe.
func (g *StripeGateway) LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent %s: %w", reference, err)
	}
	ev := paymentIntentEvent(pi)
	ev.TransactionID = pi.ID + ":" + ev.RawStatus
	return ev, nil
}

// Ack returns the success body; Stripe only checks the status code.
func (g *StripeGateway) Ack() string {
	return ""
}

// paymentIntentEvent normalizes a PaymentIntent. A declined attempt leaves the
// intent in requires_payment_method and the customer may retry on the same
// PaymentIntent, so the decline is recorded but the status stays open.
func paymentIntentEvent(pi *stripe.PaymentIntent) *model.ProviderEvent {
	md := model.Metadata{}
	if pi.LastPaymentError != nil && pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
		code := string(pi.LastPaymentError.DeclineCode)
		if code == "" {
			code = string(pi.LastPaymentError.Code)
		}
		if code != "" {
			md[model.MetaDeclineCode] = code
		}
	}
	if ch := pi.LatestCharge; ch != nil && ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
		card := ch.PaymentMethodDetails.Card
		var expiry string
		if card.ExpMonth > 0 && card.ExpYear > 0 {
			expiry = fmt.Sprintf("%02d/%02d", card.ExpMonth, card.ExpYear%100)
		}
		addCardSnapshot(md, string(card.Brand), card.Last4, expiry)
	}
	return &model.ProviderEvent{
		Reference: pi.ID,
		RawStatus: string(pi.Status),
		Amount:    pi.Amount,
		Currency:  strings.ToUpper(string(pi.Currency)),
		Metadata:  md,
	}
}

// Compile-time check
var _ outbound.PaymentGatewayPort = (*StripeGateway)(nil)
