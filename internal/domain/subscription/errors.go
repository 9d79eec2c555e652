package subscription

import "errors"

var (
	// ErrConcurrentActivation is returned when the entitlement changed between
	// read and write. The surrounding transaction should be retried.
	ErrConcurrentActivation = errors.New("entitlement changed concurrently")

	// ErrInvalidDurationPolicy is returned for a non-lifetime plan without a duration.
	ErrInvalidDurationPolicy = errors.New("invalid duration policy")

	// ErrEntitlementNotFound is returned when the user never completed a payment.
	ErrEntitlementNotFound = errors.New("entitlement not found")
)
