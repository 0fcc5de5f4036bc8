package cli

import (
	"github.com/sirupsen/logrus"

	"fundrouter/internal/config"
	"fundrouter/internal/exchange"
	"fundrouter/internal/exchange/ascendex"
	"fundrouter/internal/exchange/binance"
	"fundrouter/internal/exchange/bitrue"
	"fundrouter/internal/exchange/kucoin"
)

// BuildRegistry wires every supported exchange client from config.
// Exchanges without a config entry are still registered so public
// operations work; signed operations will fail at the gateway.
func BuildRegistry(cfg *config.Config, log logrus.FieldLogger) *exchange.Registry {
	registry := exchange.NewRegistry()

	build := func(name string, construct func(config.ExchangeConfig, config.RetryConfig, logrus.FieldLogger) exchange.Client) {
		exCfg, _ := cfg.Exchange(name)
		scoped := log
		if log != nil {
			scoped = log.WithField("exchange", name)
		}
		registry.Register(construct(exCfg, cfg.Retry, scoped), exCfg.HasSecrets())
	}

	build("binance", func(c config.ExchangeConfig, r config.RetryConfig, l logrus.FieldLogger) exchange.Client {
		return binance.New(c, r, l)
	})
	build("kucoin", func(c config.ExchangeConfig, r config.RetryConfig, l logrus.FieldLogger) exchange.Client {
		return kucoin.New(c, r, l)
	})
	build("ascendex", func(c config.ExchangeConfig, r config.RetryConfig, l logrus.FieldLogger) exchange.Client {
		return ascendex.New(c, r, l)
	})
	build("bitrue", func(c config.ExchangeConfig, r config.RetryConfig, l logrus.FieldLogger) exchange.Client {
		return bitrue.New(c, r, l)
	})
	return registry
}
