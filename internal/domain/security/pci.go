package security

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/payrecon/server/internal/model"
)

// allowedCardFields are the only card attributes that may be persisted.
var allowedCardFields = map[string]bool{
	"lastfour": true,
	"last4":    true,
	"brand":    true,
	"expiry":   true,
	"expmonth": true,
	"expyear":  true,
}

// forbiddenFields must never be persisted, whatever their value.
var forbiddenFields = map[string]bool{
	"fullnumber":   true,
	"cardnumber":   true,
	"number":       true,
	"pan":          true,
	"cvv":          true,
	"cvv2":         true,
	"cvc":          true,
	"securitycode": true,
	"track":        true,
	"trackdata":    true,
}

// ValidateStoredRecord checks a card snapshot before it is written anywhere.
// A record is compliant only if it holds nothing beyond the last four digits,
// the brand and the expiry.
func ValidateStoredRecord(record map[string]any) error {
	for key, value := range record {
		norm := normalizeKey(key)
		if forbiddenFields[norm] {
			return fmt.Errorf("%w: field %q", ErrPCIViolation, key)
		}
		if !allowedCardFields[norm] {
			return fmt.Errorf("%w: unexpected field %q", ErrPCIViolation, key)
		}
		s := fmt.Sprint(value)
		if norm == "lastfour" || norm == "last4" {
			if len(s) != 4 || !allDigits(s) {
				return fmt.Errorf("%w: %s must be exactly four digits", ErrPCIViolation, key)
			}
			continue
		}
		if looksLikePAN(s) {
			return fmt.Errorf("%w: field %q holds a card number", ErrPCIViolation, key)
		}
	}
	return nil
}

// ValidateMetadata checks a free-form metadata bag at a persistence boundary.
// Arbitrary audit keys are allowed; card numbers and CVVs are not.
// Keys under model.MetaCardPrefix form a card snapshot and must also pass
// ValidateStoredRecord.
func ValidateMetadata(md model.Metadata) error {
	card := map[string]any{}
	for key, value := range md {
		if strings.HasPrefix(key, model.MetaCardPrefix) {
			card[strings.TrimPrefix(key, model.MetaCardPrefix)] = value
			continue
		}
		if forbiddenFields[normalizeKey(key)] {
			return fmt.Errorf("%w: metadata field %q", ErrPCIViolation, key)
		}
		if looksLikePAN(value) {
			return fmt.Errorf("%w: metadata field %q holds a card number", ErrPCIViolation, key)
		}
	}
	if len(card) > 0 {
		if err := ValidateStoredRecord(card); err != nil {
			return fmt.Errorf("card snapshot: %w", err)
		}
	}
	return nil
}

func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r == '_' || r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// looksLikePAN reports whether s is a 13-19 digit Luhn-valid number,
// ignoring spaces and dashes.
func looksLikePAN(s string) bool {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnValid(digits)
}

func luhnValid(digits []byte) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
