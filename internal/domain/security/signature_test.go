package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"transaction_id":"tx-1","invoice_id":"inv-1","state":"Accepted"}`)
	secret := "whsec_test_secret"

	t.Run("round trip verifies", func(t *testing.T) {
		assert.True(t, VerifySignature(payload, Sign(payload, secret), secret))
	})

	t.Run("upper-case hex verifies", func(t *testing.T) {
		sig := Sign(payload, secret)
		upper := []byte(sig)
		for i, c := range upper {
			if c >= 'a' && c <= 'f' {
				upper[i] = c - 32
			}
		}
		assert.True(t, VerifySignature(payload, string(upper), secret))
	})

	t.Run("any single payload byte mutation fails", func(t *testing.T) {
		sig := Sign(payload, secret)
		for i := range payload {
			mutated := append([]byte{}, payload...)
			mutated[i] ^= 0x01
			assert.False(t, VerifySignature(mutated, sig, secret), "byte %d", i)
		}
	})

	t.Run("any single signature byte mutation fails", func(t *testing.T) {
		sig := []byte(Sign(payload, secret))
		for i := range sig {
			mutated := append([]byte{}, sig...)
			if mutated[i] == '0' {
				mutated[i] = '1'
			} else {
				mutated[i] = '0'
			}
			assert.False(t, VerifySignature(payload, string(mutated), secret), "byte %d", i)
		}
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, Sign(payload, secret), "other"))
	})

	t.Run("empty inputs fail", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, "", secret))
		assert.False(t, VerifySignature(payload, Sign(payload, ""), ""))
		assert.False(t, VerifySignature(payload, "not-hex", secret))
	})
}

func TestChecksum(t *testing.T) {
	t.Run("is deterministic and order sensitive", func(t *testing.T) {
		a := Checksum("pk", "inv-1", 999, "usd")
		assert.Equal(t, a, Checksum("pk", "inv-1", 999, "USD"))
		assert.NotEqual(t, a, Checksum("pk", "inv-1", 998, "USD"))
		assert.NotEqual(t, a, Checksum("inv-1", "pk", 999, "USD"))
		assert.Len(t, a, 64)
	})

	t.Run("matches the documented wire format", func(t *testing.T) {
		// sha256("pk:inv-1:999:USD")
		assert.Equal(t, "0123d08e9b73d6e512dd55bdae3a28e5b3678ba949e2e87d09ff5426fabe1bcf",
			Checksum("pk", "inv-1", 999, "USD"))
		assert.True(t, VerifyChecksum("0123D08E9B73D6E512DD55BDAE3A28E5B3678BA949E2E87D09FF5426FABE1BCF",
			"pk", "inv-1", 999, "USD"))
	})

	t.Run("rejects tampered amount", func(t *testing.T) {
		sum := Checksum("pk", "inv-1", 999, "USD")
		assert.False(t, VerifyChecksum(sum, "pk", "inv-1", 1, "USD"))
	})
}
