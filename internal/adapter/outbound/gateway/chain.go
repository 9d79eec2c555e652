package gateway

import (
	"context"
	"encoding/json"
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

// Chain settlement raw statuses. A deposit is only confirmed once it has the
// required number of confirmations; until then it reports confirming.
const (
	chainStatusUnpaid     = "unpaid"
	chainStatusConfirming = "confirming"
	chainStatusConfirmed  = "confirmed"
	chainStatusFailed     = "failed"
	chainStatusExpired    = "expired"
)

// ChainSettlementConfig holds on-chain settlement configuration.
type ChainSettlementConfig struct {
	APIURL                string
	DepositAddress        string
	PrivateKey            string
	WebhookSecret         string
	RequiredConfirmations int
	// PaymentWindow is how long the deposit address accepts this invoice.
	PaymentWindow time.Duration
}

// ChainSettlementGateway implements a polled on-chain settlement provider.
// Webhooks are optional; recovery polling is the primary confirmation path.
type ChainSettlementGateway struct {
	config *ChainSettlementConfig
	client *http.Client
	now    func() time.Time
}

// chainDeposit is the webhook and deposit API body.
type chainDeposit struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	InvoiceID     string `json:"invoice_id"`
	TxHash        string `json:"tx_hash"`
	State         string `json:"state"`
	Confirmations int    `json:"confirmations"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// NewChainSettlementGateway creates a new chain settlement gateway.
func NewChainSettlementGateway(config *ChainSettlementConfig, client *http.Client) *ChainSettlementGateway {
	if client == nil {
		client = http.DefaultClient
	}
	if config.PaymentWindow == 0 {
		config.PaymentWindow = time.Hour
	}
	return &ChainSettlementGateway{
		config: config,
		client: client,
		now:    time.Now,
	}
}

// Provider returns the provider name.
func (g *ChainSettlementGateway) Provider() model.Provider {
	return model.ProviderChainSettlement
}

// CreateCheckout returns deposit instructions tagged with the intent id as memo.
func (g *ChainSettlementGateway) CreateCheckout(ctx context.Context, intent *model.PaymentIntent, plan *model.Plan) (*model.CheckoutArtifact, error) {
	invoiceID := intent.ID.String()
	currency := strings.ToUpper(intent.Currency)
	checksum := security.Checksum(g.config.PrivateKey, invoiceID, intent.Amount, currency)
	expiresAt := g.now().Add(g.config.PaymentWindow).UTC()

	return &model.CheckoutArtifact{
		Provider:          model.ProviderChainSettlement,
		ProviderReference: invoiceID,
		FormFields: map[string]string{
			"deposit_address": g.config.DepositAddress,
			"memo":            invoiceID,
			"amount":          strconv.FormatInt(intent.Amount, 10),
			"currency":        currency,
			"confirmations":   strconv.Itoa(g.config.RequiredConfirmations),
		},
		Checksum:  checksum,
		ExpiresAt: &expiresAt,
	}, nil
}

// VerifyWebhook checks the X-Signature HMAC over the raw body.
func (g *ChainSettlementGateway) VerifyWebhook(payload []byte, signature string) error {
	if !security.VerifySignature(payload, signature, g.config.WebhookSecret) {
		return security.ErrSignatureInvalid
	}
	return nil
}

// ParseWebhook decodes a verified deposit notification.
func (g *ChainSettlementGateway) ParseWebhook(payload []byte) (*model.ProviderEvent, error) {
	var d chainDeposit
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decode deposit: %w", err)
	}
	if d.Type != "" && d.Type != "deposit" {
		return nil, outbound.ErrEventIgnored
	}
	return g.toEvent(&d), nil
}

// MapStatus maps the deposit state to a canonical status.
func (g *ChainSettlementGateway) MapStatus(event *model.ProviderEvent) (model.PaymentStatus, bool) {
	switch event.RawStatus {
	case chainStatusUnpaid, chainStatusConfirming:
		return model.PaymentStatusPending, true
	case chainStatusConfirmed:
		return model.PaymentStatusCompleted, true
	case chainStatusFailed:
		return model.PaymentStatusFailed, true
	case chainStatusExpired:
		return model.PaymentStatusCancelled, true
	default:
		return "", false
	}
}

// LookupStatus polls the deposit state for an invoice.
func (g *ChainSettlementGateway) LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	endpoint := strings.TrimRight(g.config.APIURL, "/") + "/v1/deposits/" + url.PathEscape(reference)

	var d chainDeposit
	if err := getJSON(ctx, g.client, endpoint, nil, &d); err != nil {
		return nil, fmt.Errorf("lookup deposit %s: %w", reference, err)
	}
	if d.InvoiceID == "" {
		d.InvoiceID = reference
	}
	return g.toEvent(&d), nil
}

// Ack returns the success body; this provider only checks the status code.
func (g *ChainSettlementGateway) Ack() string {
	return ""
}

// effectiveState downgrades confirmed deposits that lack confirmations.
func (g *ChainSettlementGateway) effectiveState(d *chainDeposit) string {
	if d.State == chainStatusConfirmed && d.Confirmations < g.config.RequiredConfirmations {
		return chainStatusConfirming
	}
	return d.State
}

func (g *ChainSettlementGateway) toEvent(d *chainDeposit) *model.ProviderEvent {
	state := g.effectiveState(d)
	txID := d.EventID
	if txID == "" && d.TxHash != "" {
		txID = d.TxHash + ":" + state + ":" + strconv.Itoa(d.Confirmations)
	}
	md := model.Metadata{
		"confirmations": strconv.Itoa(d.Confirmations),
	}
	if d.TxHash != "" {
		md["tx_hash"] = d.TxHash
	}
	return &model.ProviderEvent{
		TransactionID: txID,
		Reference:     d.InvoiceID,
		RawStatus:     state,
		Amount:        d.Amount,
		Currency:      strings.ToUpper(d.Currency),
		Metadata:      md,
	}
}

// Compile-time check
var _ outbound.PaymentGatewayPort = (*ChainSettlementGateway)(nil)
