package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature over the raw payload bytes.
// An empty secret or signature never verifies.
func VerifySignature(payload []byte, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// checksumSeparator joins checksum fields. Providers recompute the checksum
// with the same order and separator, so neither may change.
const checksumSeparator = ":"

// Checksum computes the checkout checksum echoed back by redirect providers:
// hex(sha256(privateKey:invoiceID:amount:currency)), amount in minor units
// and currency upper-cased.
func Checksum(privateKey, invoiceID string, amount int64, currency string) string {
	fields := []string{
		privateKey,
		invoiceID,
		strconv.FormatInt(amount, 10),
		strings.ToUpper(currency),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, checksumSeparator)))
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum recomputes the checkout checksum and compares in constant time.
func VerifyChecksum(checksum, privateKey, invoiceID string, amount int64, currency string) bool {
	expected := Checksum(privateKey, invoiceID, amount, currency)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(checksum))) == 1
}
