package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
)

// Alipay trade statuses.
const (
	alipayTradeWaitBuyerPay = "WAIT_BUYER_PAY"
	alipayTradeSuccess      = "TRADE_SUCCESS"
	alipayTradeFinished     = "TRADE_FINISHED"
	alipayTradeClosed       = "TRADE_CLOSED"

	alipayCodeSuccess     = "10000"
	alipayTradeNotExist   = "ACQ.TRADE_NOT_EXIST"
	alipayCurrency        = "CNY"
	alipayNotifyAck       = "success"
	alipayPagePayProduct  = "FAST_INSTANT_TRADE_PAY"
	alipayCheckoutTimeout = "30m"
)

// AlipayConfig holds Alipay configuration.
type AlipayConfig struct {
	AppID           string // Application ID
	PrivateKey      string // RSA2 private key (PEM format)
	AlipayPublicKey string // Alipay public key for verification (PEM format)
	IsProd          bool
	NotifyURL       string
	ReturnURL       string
}

// AlipayGateway implements Alipay page pay with signed async notifications.
type AlipayGateway struct {
	client *alipay.Client
	config *AlipayConfig
}

// NewAlipayGateway creates a new Alipay gateway.
func NewAlipayGateway(config *AlipayConfig) (*AlipayGateway, error) {
	c, err := alipay.NewClient(config.AppID, config.PrivateKey, config.IsProd)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}

	// Set public key for auto signature verification
	c.AutoVerifySign([]byte(config.AlipayPublicKey))
	if config.NotifyURL != "" {
		c.SetNotifyUrl(config.NotifyURL)
	}
	if config.ReturnURL != "" {
		c.SetReturnUrl(config.ReturnURL)
	}

	return &AlipayGateway{client: c, config: config}, nil
}

// Provider returns the provider name.
func (g *AlipayGateway) Provider() model.Provider {
	return model.ProviderAlipay
}

// CreateCheckout creates a page pay URL. The intent id is the merchant trade number.
func (g *AlipayGateway) CreateCheckout(ctx context.Context, intent *model.PaymentIntent, plan *model.Plan) (*model.CheckoutArtifact, error) {
	if !strings.EqualFold(intent.Currency, alipayCurrency) {
		return nil, fmt.Errorf("alipay only settles %s, plan is %s", alipayCurrency, intent.Currency)
	}
	outTradeNo := intent.ID.String()

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", outTradeNo)
	bm.Set("total_amount", formatYuan(intent.Amount))
	bm.Set("subject", plan.Name)
	bm.Set("product_code", alipayPagePayProduct)
	bm.Set("timeout_express", alipayCheckoutTimeout)

	payURL, err := g.client.TradePagePay(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("create page payment: %w", err)
	}

	return &model.CheckoutArtifact{
		Provider:          model.ProviderAlipay,
		ProviderReference: outTradeNo,
		RedirectURL:       payURL,
	}, nil
}

// VerifyWebhook checks the RSA2 sign carried in the form body. The signature
// argument is unused because Alipay does not sign through a header.
func (g *AlipayGateway) VerifyWebhook(payload []byte, _ string) error {
	bm, err := notifyBodyMap(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", security.ErrSignatureInvalid, err)
	}
	ok, err := alipay.VerifySign(g.config.AlipayPublicKey, bm)
	if err != nil {
		return fmt.Errorf("%w: %w", security.ErrSignatureInvalid, err)
	}
	if !ok {
		return security.ErrSignatureInvalid
	}
	return nil
}

// ParseWebhook decodes a verified trade notification.
func (g *AlipayGateway) ParseWebhook(payload []byte) (*model.ProviderEvent, error) {
	bm, err := notifyBodyMap(payload)
	if err != nil {
		return nil, err
	}
	status := bm.GetString("trade_status")
	if status == "" {
		return nil, outbound.ErrEventIgnored
	}

	amount, err := parseYuan(bm.GetString("total_amount"))
	if err != nil {
		return nil, err
	}

	tradeNo := bm.GetString("trade_no")
	txID := bm.GetString("notify_id")
	if txID == "" {
		txID = tradeNo + ":" + status
	}
	md := model.Metadata{}
	if tradeNo != "" {
		md["alipay_trade_no"] = tradeNo
	}

	return &model.ProviderEvent{
		TransactionID: txID,
		Reference:     bm.GetString("out_trade_no"),
		RawStatus:     status,
		Amount:        amount,
		Currency:      alipayCurrency,
		Metadata:      md,
	}, nil
}

// MapStatus maps Alipay trade statuses to canonical statuses.
func (g *AlipayGateway) MapStatus(event *model.ProviderEvent) (model.PaymentStatus, bool) {
	switch event.RawStatus {
	case alipayTradeWaitBuyerPay:
		return model.PaymentStatusPending, true
	case alipayTradeSuccess, alipayTradeFinished:
		return model.PaymentStatusCompleted, true
	case alipayTradeClosed:
		return model.PaymentStatusCancelled, true
	default:
		return "", false
	}
}

// LookupStatus queries the trade. A trade Alipay has never seen is still
// waiting for the buyer.
func (g *AlipayGateway) LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", reference)

	resp, err := g.client.TradeQuery(ctx, bm)
	if resp != nil && resp.Response != nil && resp.Response.SubCode == alipayTradeNotExist {
		return &model.ProviderEvent{
			TransactionID: reference + ":" + alipayTradeWaitBuyerPay,
			Reference:     reference,
			RawStatus:     alipayTradeWaitBuyerPay,
			Metadata:      model.Metadata{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}
	if resp.Response.Code != alipayCodeSuccess {
		return nil, fmt.Errorf("alipay query error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	amount, err := parseYuan(resp.Response.TotalAmount)
	if err != nil {
		return nil, err
	}
	md := model.Metadata{}
	if resp.Response.TradeNo != "" {
		md["alipay_trade_no"] = resp.Response.TradeNo
	}

	return &model.ProviderEvent{
		TransactionID: resp.Response.TradeNo + ":" + resp.Response.TradeStatus,
		Reference:     resp.Response.OutTradeNo,
		RawStatus:     resp.Response.TradeStatus,
		Amount:        amount,
		Currency:      alipayCurrency,
		Metadata:      md,
	}, nil
}

// Ack returns the literal body Alipay expects; anything else triggers redelivery.
func (g *AlipayGateway) Ack() string {
	return alipayNotifyAck
}

// notifyBodyMap parses the form-encoded notify body the way the SDK expects.
func notifyBodyMap(payload []byte) (gopay.BodyMap, error) {
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	bm, err := alipay.ParseNotifyToBodyMap(req)
	if err != nil {
		return nil, fmt.Errorf("parse notify: %w", err)
	}
	return bm, nil
}

// formatYuan renders minor units as a yuan amount with two decimals.
func formatYuan(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// parseYuan converts a yuan amount with at most two decimals to minor units.
// An empty amount is zero.
func parseYuan(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, errors.New("invalid amount: " + s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	yuan, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, errors.New("invalid amount: " + s)
	}
	fen, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, errors.New("invalid amount: " + s)
	}
	return int64(yuan)*100 + int64(fen), nil
}

// Compile-time check
var _ outbound.PaymentGatewayPort = (*AlipayGateway)(nil)
