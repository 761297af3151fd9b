package gateway

import (
	"strings"

	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
)

// Factory builds a provider from static and hot-reloadable settings.
type Factory interface {
	Provider() string
	NewProvider(cfg config.GatewayConfig, settings *config.GatewayConfigHolder) (domain.Provider, error)
}

type Registry struct {
	factories map[string]Factory
}

func NewRegistry(factories ...Factory) *Registry {
	registry := &Registry{factories: map[string]Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) NewProvider(cfg config.GatewayConfig, settings *config.GatewayConfigHolder) (domain.Provider, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(cfg.Provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewProvider(cfg, settings)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
