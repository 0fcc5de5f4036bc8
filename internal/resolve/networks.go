package resolve

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
)

type NetworkResolver struct {
	cfg *config.Config
	log logrus.FieldLogger
}

func NewNetworkResolver(cfg *config.Config, log logrus.FieldLogger) *NetworkResolver {
	return &NetworkResolver{cfg: cfg, log: log}
}

// DepositNetworks resolves the networks an asset can be deposited over
// on one exchange, as canonical tokens in discovery order. Live
// discovery is used when supported and non-empty; otherwise the config
// fallback list. Neither source yielding networks is ErrNoNetworkData.
func (r *NetworkResolver) DepositNetworks(ctx context.Context, client exchange.Client, asset string) ([]string, error) {
	if client.Capabilities().DepositNetworks {
		networks, err := client.DepositNetworks(ctx, asset)
		if err == nil && len(networks) > 0 {
			return exchange.CanonicalNetworks(networks), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: network lookup on %s", core.ErrInterrupted, client.Name())
			}
			if r.log != nil {
				r.log.WithFields(logrus.Fields{
					"exchange": client.Name(),
					"asset":    asset,
				}).WithError(err).Warn("live network lookup failed, using config fallback")
			}
		}
	}
	networks := exchange.CanonicalNetworks(r.cfg.FallbackNetworkList(client.Name(), asset))
	if len(networks) == 0 {
		return nil, fmt.Errorf("%w: no deposit networks for %s on %s", core.ErrNoNetworkData, asset, client.Name())
	}
	return networks, nil
}
