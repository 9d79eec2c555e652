package security

import (
	"testing"

	"github.com/payrecon/server/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateStoredRecord(t *testing.T) {
	tests := []struct {
		name      string
		record    map[string]any
		compliant bool
	}{
		{"last four and brand", map[string]any{"lastFour": "0326", "brand": "VISA"}, true},
		{"with expiry", map[string]any{"last_four": "0326", "brand": "MASTERCARD", "expiry": "12/27"}, true},
		{"empty record", map[string]any{}, true},
		{"full number", map[string]any{"fullNumber": "4575623182290326"}, false},
		{"cvv", map[string]any{"cvv": "123"}, false},
		{"cvc with compliant fields", map[string]any{"lastFour": "0326", "cvc": "999"}, false},
		{"last four too long", map[string]any{"lastFour": "90326"}, false},
		{"last four not digits", map[string]any{"lastFour": "03x6"}, false},
		{"pan hidden in brand", map[string]any{"brand": "4575 6231 8229 0326"}, false},
		{"unknown field", map[string]any{"holder": "Jane"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStoredRecord(tt.record)
			if tt.compliant {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPCIViolation)
			}
		})
	}
}

func TestValidateMetadata(t *testing.T) {
	t.Run("allows audit fields", func(t *testing.T) {
		md := model.Metadata{
			"provider_status": "Accepted",
			"order_number":    "1234567",
			"lastFour":        "0326",
		}
		assert.NoError(t, ValidateMetadata(md))
	})

	t.Run("rejects card number values", func(t *testing.T) {
		md := model.Metadata{"note": "4575-6231-8229-0326"}
		assert.ErrorIs(t, ValidateMetadata(md), ErrPCIViolation)
	})

	t.Run("rejects cvv keys", func(t *testing.T) {
		assert.ErrorIs(t, ValidateMetadata(model.Metadata{"CVV": "1"}), ErrPCIViolation)
	})

	t.Run("long non-luhn numbers are allowed", func(t *testing.T) {
		assert.NoError(t, ValidateMetadata(model.Metadata{"tx": "4575623182290327"}))
	})

	t.Run("compliant card snapshot", func(t *testing.T) {
		md := model.Metadata{
			"card.brand":      "visa",
			"card.last4":      "4242",
			"card.expiry":     "12/27",
			"provider_status": "succeeded",
		}
		assert.NoError(t, ValidateMetadata(md))
	})

	t.Run("card snapshot is held to the stored record rules", func(t *testing.T) {
		for _, md := range []model.Metadata{
			{"card.last4": "42424"},
			{"card.holder": "Jane"},
			{"card.number": "4000"},
			{"card.brand": "visa", "card.cvc": "123"},
		} {
			assert.ErrorIs(t, ValidateMetadata(md), ErrPCIViolation, "%v", md)
		}
	})
}

func TestRequireSecondaryAuth(t *testing.T) {
	assert.True(t, RequireSecondaryAuth(10001, 10000))
	assert.False(t, RequireSecondaryAuth(10000, 10000))
	assert.False(t, RequireSecondaryAuth(5, 0))
}
