package gateway

import (
	"testing"

	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlipayGateway_MapStatus(t *testing.T) {
	g := &AlipayGateway{}
	tests := []struct {
		raw    string
		status model.PaymentStatus
		ok     bool
	}{
		{"WAIT_BUYER_PAY", model.PaymentStatusPending, true},
		{"TRADE_SUCCESS", model.PaymentStatusCompleted, true},
		{"TRADE_FINISHED", model.PaymentStatusCompleted, true},
		{"TRADE_CLOSED", model.PaymentStatusCancelled, true},
		{"TRADE_PENDING", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			status, ok := g.MapStatus(&model.ProviderEvent{RawStatus: tt.raw})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.status, status)
		})
	}
	assert.Equal(t, "success", g.Ack())
}

func TestAlipayAmounts(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		assert.Equal(t, "9.99", formatYuan(999))
		assert.Equal(t, "199.00", formatYuan(19900))
		assert.Equal(t, "0.05", formatYuan(5))
	})

	t.Run("parse", func(t *testing.T) {
		tests := map[string]int64{
			"9.99":   999,
			"199.00": 19900,
			"0.1":    10,
			"":       0,
			"12":     1200,
		}
		for in, want := range tests {
			got, err := parseYuan(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}
	})

	t.Run("parse rejects garbage", func(t *testing.T) {
		_, err := parseYuan("ten")
		assert.Error(t, err)
		_, err = parseYuan("-1.00")
		assert.Error(t, err)
		_, err = parseYuan("1.005")
		assert.Error(t, err)
	})
}

func TestAlipayGateway_ParseWebhook(t *testing.T) {
	g := &AlipayGateway{config: &AlipayConfig{}}

	t.Run("trade notification", func(t *testing.T) {
		body := []byte("notify_id=n-1&out_trade_no=intent-1&trade_no=2026030122001&trade_status=TRADE_SUCCESS&total_amount=99.90&sign=abc&sign_type=RSA2")
		ev, err := g.ParseWebhook(body)
		require.NoError(t, err)
		assert.Equal(t, "n-1", ev.TransactionID)
		assert.Equal(t, "intent-1", ev.Reference)
		assert.Equal(t, "TRADE_SUCCESS", ev.RawStatus)
		assert.Equal(t, int64(9990), ev.Amount)
		assert.Equal(t, "CNY", ev.Currency)
		assert.Equal(t, "2026030122001", ev.Metadata["alipay_trade_no"])
	})

	t.Run("notification without trade status is ignored", func(t *testing.T) {
		_, err := g.ParseWebhook([]byte("notify_id=n-2&notify_type=batch_trans_notify"))
		assert.ErrorIs(t, err, outbound.ErrEventIgnored)
	})
}
