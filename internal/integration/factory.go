package integration

import (
	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/httpclient"
	"github.com/counterpos/counterpos/internal/integration/cash"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/integration/mobilemoney"
	"github.com/counterpos/counterpos/internal/integration/stripe"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// Factory resolves payment providers by code
type Factory struct {
	providers map[types.PaymentProvider]gateway.Provider
	logger    *logger.Logger
}

// NewFactory registers cash and every provider enabled in config
func NewFactory(cfg *config.Configuration, logger *logger.Logger) (*Factory, error) {
	providers := []gateway.Provider{cash.NewProvider()}

	if cfg.Payment.MobileMoney.Enabled {
		client := httpclient.NewDefaultClient(httpclient.ClientConfig{
			Timeout:   cfg.Payment.ProviderTimeout,
			RetryMax:  cfg.Payment.MobileMoney.RetryMax,
			RateLimit: cfg.Payment.MobileMoney.RateLimit,
		}, logger)
		mm, err := mobilemoney.NewProvider(cfg.Payment.MobileMoney, client, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, mm)
	}

	if cfg.Payment.Stripe.Enabled {
		providers = append(providers, stripe.NewProvider(cfg.Payment.Stripe, logger))
	}

	f := NewFactoryWithProviders(logger, providers...)
	logger.Infow("payment providers registered", "providers", lo.Keys(f.providers))
	return f, nil
}

// NewFactoryWithProviders builds a factory from ready providers
func NewFactoryWithProviders(logger *logger.Logger, providers ...gateway.Provider) *Factory {
	return &Factory{
		providers: lo.SliceToMap(providers, func(p gateway.Provider) (types.PaymentProvider, gateway.Provider) {
			return p.Code(), p
		}),
		logger: logger,
	}
}

// GetProvider returns the provider registered for code
func (f *Factory) GetProvider(code types.PaymentProvider) (gateway.Provider, error) {
	p, ok := f.providers[code]
	if !ok {
		return nil, ierr.NewErrorf("payment provider %s is not available", code).
			WithHintf("Payment provider '%s' is not supported", code).
			WithReportableDetails(map[string]any{
				"provider": code,
			}).
			Mark(ierr.ErrValidation)
	}
	return p, nil
}

// GetSupportedProviders returns the codes of all registered providers
func (f *Factory) GetSupportedProviders() []types.PaymentProvider {
	return lo.Keys(f.providers)
}
