package gateway

import (
	"context"
	"time"

	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig configures a provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		Interval:         60 * time.Second,
		Timeout:          60 * time.Second,
	}
}

// breakerGateway guards provider API calls with a circuit breaker.
// Webhook verification and parsing are local and pass straight through.
type breakerGateway struct {
	outbound.PaymentGatewayPort
	cb *gobreaker.CircuitBreaker[*model.ProviderEvent]
}

// WithBreaker wraps g so that status lookups stop hitting a failing provider.
func WithBreaker(g outbound.PaymentGatewayPort, config *BreakerConfig, m *metrics.Metrics, logger *zap.Logger) outbound.PaymentGatewayPort {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	provider := g.Provider().String()
	threshold := config.FailureThreshold

	settings := gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetCircuitState(name, stateValue(to))
			logger.Warn("provider circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	m.SetCircuitState(provider, stateValue(gobreaker.StateClosed))

	return &breakerGateway{
		PaymentGatewayPort: g,
		cb:                 gobreaker.NewCircuitBreaker[*model.ProviderEvent](settings),
	}
}

// LookupStatus queries the provider unless the breaker is open.
func (b *breakerGateway) LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	return b.cb.Execute(func() (*model.ProviderEvent, error) {
		return b.PaymentGatewayPort.LookupStatus(ctx, reference)
	})
}

// stateValue maps a breaker state to the circuit gauge value.
func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
