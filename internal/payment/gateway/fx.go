package gateway

import (
	"fmt"

	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/payment/domain"
	"go.uber.org/zap"
)

// Select builds the provider named by cfg.Gateway.Provider.
func Select(cfg config.Config, registry *Registry, settings *config.GatewayConfigHolder, log *zap.Logger) (domain.Provider, error) {
	if !registry.ProviderExists(cfg.Gateway.Provider) {
		return nil, fmt.Errorf("payment gateway %q: %w", cfg.Gateway.Provider, domain.ErrProviderNotFound)
	}
	provider, err := registry.NewProvider(cfg.Gateway, settings)
	if err != nil {
		return nil, fmt.Errorf("payment gateway %q: %w", cfg.Gateway.Provider, err)
	}
	log.Named("payment.gateway").Info("payment gateway selected", zap.String("provider", provider.Provider()))
	return provider, nil
}

// AsGateway exposes the selected provider through the narrower contract.
func AsGateway(provider domain.Provider) domain.Gateway {
	return provider
}
