package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
)

// Registry holds the configured gateways by provider.
type Registry struct {
	mu       sync.RWMutex
	gateways map[model.Provider]outbound.PaymentGatewayPort
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[model.Provider]outbound.PaymentGatewayPort),
	}
}

// Register adds a gateway, replacing any previous one for the same provider.
func (r *Registry) Register(g outbound.PaymentGatewayPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Provider()] = g
}

// Get returns the gateway for a provider.
func (r *Registry) Get(provider model.Provider) (outbound.PaymentGatewayPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("gateway not registered: %s", provider)
	}
	return g, nil
}

// Providers lists the registered providers in name order.
func (r *Registry) Providers() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Compile-time check
var _ outbound.PaymentGatewayRegistryPort = (*Registry)(nil)
