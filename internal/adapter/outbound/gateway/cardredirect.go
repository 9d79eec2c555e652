package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
)

// Card redirect status vocabulary.
const (
	cardStatusAccepted  = "Accepted"
	cardStatusDeclined  = "Declined"
	cardStatusPending   = "Pending"
	cardStatusSecure3DS = "Secure3DS"
	cardStatusCancelled = "Cancelled"
	cardStatusExpired   = "Expired"
	cardStatusRefunded  = "Refunded"
)

// CardRedirectConfig holds hosted card checkout configuration.
type CardRedirectConfig struct {
	CheckoutURL   string
	APIURL        string
	MerchantID    string
	PrivateKey    string
	WebhookSecret string
	// CheckoutTTL is how long the hosted page accepts the invoice.
	CheckoutTTL time.Duration
}

// CardRedirectGateway implements a redirect-then-webhook card provider with a
// 3-D Secure interim state.
type CardRedirectGateway struct {
	config *CardRedirectConfig
	client *http.Client
	now    func() time.Time
}

// cardNotification is the webhook and status API body.
type cardNotification struct {
	EventID       string       `json:"event_id"`
	Type          string       `json:"type"`
	TransactionID string       `json:"transaction_id"`
	InvoiceID     string       `json:"invoice_id"`
	Status        string       `json:"status"`
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	Checksum      string       `json:"checksum"`
	Card          *cardDetails `json:"card,omitempty"`
}

// cardDetails is the masked card the provider charged.
type cardDetails struct {
	Brand  string `json:"brand"`
	Last4  string `json:"last4"`
	Expiry string `json:"expiry"`
}

// NewCardRedirectGateway creates a new card redirect gateway.
func NewCardRedirectGateway(config *CardRedirectConfig, client *http.Client) *CardRedirectGateway {
	if client == nil {
		client = http.DefaultClient
	}
	if config.CheckoutTTL == 0 {
		config.CheckoutTTL = 30 * time.Minute
	}
	return &CardRedirectGateway{
		config: config,
		client: client,
		now:    time.Now,
	}
}

// Provider returns the provider name.
func (g *CardRedirectGateway) Provider() model.Provider {
	return model.ProviderCardRedirect
}

// CreateCheckout builds the signed redirect form. The intent id is the invoice id.
func (g *CardRedirectGateway) CreateCheckout(ctx context.Context, intent *model.PaymentIntent, plan *model.Plan) (*model.CheckoutArtifact, error) {
	invoiceID := intent.ID.String()
	currency := strings.ToUpper(intent.Currency)
	checksum := security.Checksum(g.config.PrivateKey, invoiceID, intent.Amount, currency)
	expiresAt := g.now().Add(g.config.CheckoutTTL).UTC()

	fields := map[string]string{
		"merchant_id": g.config.MerchantID,
		"invoice_id":  invoiceID,
		"amount":      strconv.FormatInt(intent.Amount, 10),
		"currency":    currency,
		"description": plan.Name,
		"checksum":    checksum,
	}

	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}

	return &model.CheckoutArtifact{
		Provider:          model.ProviderCardRedirect,
		ProviderReference: invoiceID,
		RedirectURL:       g.config.CheckoutURL + "?" + q.Encode(),
		FormFields:        fields,
		Checksum:          checksum,
		ExpiresAt:         &expiresAt,
	}, nil
}

// VerifyWebhook checks the X-Signature HMAC over the raw body.
func (g *CardRedirectGateway) VerifyWebhook(payload []byte, signature string) error {
	if !security.VerifySignature(payload, signature, g.config.WebhookSecret) {
		return security.ErrSignatureInvalid
	}
	return nil
}

// ParseWebhook decodes a verified notification and checks its echoed checksum.
func (g *CardRedirectGateway) ParseWebhook(payload []byte) (*model.ProviderEvent, error) {
	var n cardNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.Type == "ping" {
		return nil, outbound.ErrEventIgnored
	}
	if n.Checksum != "" && !security.VerifyChecksum(n.Checksum, g.config.PrivateKey, n.InvoiceID, n.Amount, n.Currency) {
		return nil, errors.New("checksum mismatch")
	}
	return g.toEvent(&n), nil
}

// MapStatus maps the card vocabulary to a canonical status.
func (g *CardRedirectGateway) MapStatus(event *model.ProviderEvent) (model.PaymentStatus, bool) {
	switch event.RawStatus {
	case cardStatusAccepted:
		return model.PaymentStatusCompleted, true
	case cardStatusDeclined:
		return model.PaymentStatusFailed, true
	case cardStatusPending:
		return model.PaymentStatusPending, true
	case cardStatusSecure3DS:
		return model.PaymentStatusAwaitingSecondaryAuth, true
	case cardStatusCancelled:
		return model.PaymentStatusCancelled, true
	case cardStatusExpired:
		return model.PaymentStatusAbandoned, true
	case cardStatusRefunded:
		return model.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// LookupStatus fetches the invoice state from the provider API.
func (g *CardRedirectGateway) LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	endpoint := strings.TrimRight(g.config.APIURL, "/") + "/v1/invoices/" + url.PathEscape(reference)
	headers := map[string]string{
		"X-Merchant-Id": g.config.MerchantID,
		"X-Signature":   security.Sign([]byte(reference), g.config.PrivateKey),
	}

	var n cardNotification
	if err := getJSON(ctx, g.client, endpoint, headers, &n); err != nil {
		return nil, fmt.Errorf("lookup invoice %s: %w", reference, err)
	}
	if n.InvoiceID == "" {
		n.InvoiceID = reference
	}
	return g.toEvent(&n), nil
}

// Ack returns the success body; this provider only checks the status code.
func (g *CardRedirectGateway) Ack() string {
	return ""
}

func (g *CardRedirectGateway) toEvent(n *cardNotification) *model.ProviderEvent {
	txID := n.EventID
	if txID == "" && n.TransactionID != "" {
		// Each status of a transaction is its own delivery.
		txID = n.TransactionID + ":" + n.Status
	}
	md := model.Metadata{}
	if n.TransactionID != "" {
		md["card_transaction_id"] = n.TransactionID
	}
	if n.Card != nil {
		addCardSnapshot(md, n.Card.Brand, n.Card.Last4, n.Card.Expiry)
	}
	return &model.ProviderEvent{
		TransactionID: txID,
		Reference:     n.InvoiceID,
		RawStatus:     n.Status,
		Amount:        n.Amount,
		Currency:      strings.ToUpper(n.Currency),
		Metadata:      md,
	}
}

// Compile-time check
var _ outbound.PaymentGatewayPort = (*CardRedirectGateway)(nil)
