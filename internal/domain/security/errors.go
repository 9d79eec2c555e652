package security

import "errors"

var (
	// ErrSignatureInvalid is returned when a webhook signature does not verify.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrPCIViolation is returned when a record would persist card data
	// beyond the last four digits, brand and expiry.
	ErrPCIViolation = errors.New("record is not PCI compliant")

	// ErrDecryptionFailed is returned when an at-rest blob cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKey is returned when the at-rest secret is unusable.
	ErrInvalidKey = errors.New("invalid encryption key")
)
