package payment

import "time"

// Config holds payment creation policy.
type Config struct {
	// MaxAttemptsPerWindow caps intent creation per user per rate limit window.
	MaxAttemptsPerWindow int64
	// SecondaryAuthThreshold is the amount above which secondary authentication is required.
	SecondaryAuthThreshold int64
}

// DefaultConfig returns the default payment configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttemptsPerWindow:   10,
		SecondaryAuthThreshold: 0,
	}
}

// RecoveryConfig holds recovery sweep settings.
type RecoveryConfig struct {
	Interval time.Duration
	// GracePeriod keeps recovery away from intents whose webhook is merely slow.
	GracePeriod time.Duration
	// Retention stops recovery from querying providers about ancient intents.
	Retention       time.Duration
	ProviderTimeout time.Duration
	BatchSize       int
	LockTTL         time.Duration
}

// DefaultRecoveryConfig returns the default recovery settings.
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		Interval:        5 * time.Minute,
		GracePeriod:     5 * time.Minute,
		Retention:       72 * time.Hour,
		ProviderTimeout: 10 * time.Second,
		BatchSize:       100,
		LockTTL:         4 * time.Minute,
	}
}

// CleanupConfig holds abandonment sweep settings.
type CleanupConfig struct {
	Interval     time.Duration
	AbandonAfter time.Duration
	ReasonCode   string
	BatchSize    int
	LockTTL      time.Duration
}

// DefaultCleanupConfig returns the default cleanup settings.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval:     5 * time.Minute,
		AbandonAfter: time.Hour,
		ReasonCode:   ReasonSecondaryAuthTimeout,
		BatchSize:    500,
		LockTTL:      4 * time.Minute,
	}
}

// Reason codes written to intent metadata.
const (
	ReasonSecondaryAuthTimeout = "secondary_auth_timeout"
	ReasonAmountMismatch       = "amount_mismatch"
	ReasonCheckoutFailed       = "checkout_failed"
)
