// Package resolve turns capability-gated exchange lookups into reliable
// answers by falling back to static config tables when the live API is
// unsupported or unavailable.
package resolve

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
)

type FeeResolver struct {
	cfg *config.Config
	log logrus.FieldLogger
}

func NewFeeResolver(cfg *config.Config, log logrus.FieldLogger) *FeeResolver {
	return &FeeResolver{cfg: cfg, log: log}
}

// Fees resolves the withdrawal fee table for an asset on one exchange.
// A live lookup is attempted only when the client declares the
// capability; any live failure degrades to the config fallback rather
// than surfacing. No data from either source is ErrNoFeeData.
func (r *FeeResolver) Fees(ctx context.Context, client exchange.Client, asset string) (core.WithdrawalFees, error) {
	if client.Capabilities().WithdrawalFees {
		fees, err := client.WithdrawalFees(ctx, asset)
		if err == nil && len(fees.Fees) > 0 {
			return fees, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return core.WithdrawalFees{}, fmt.Errorf("%w: fee lookup on %s", core.ErrInterrupted, client.Name())
			}
			r.warn(client.Name(), asset, err)
		}
	}
	return r.fallback(client.Name(), asset)
}

func (r *FeeResolver) fallback(exchangeName, asset string) (core.WithdrawalFees, error) {
	table := r.cfg.FallbackFeeTable(exchangeName, asset)
	fees := core.WithdrawalFees{Asset: asset, Fees: make(map[string]decimal.Decimal, len(table))}
	for network, raw := range table {
		fee, err := decimal.NewFromString(raw)
		if err != nil || fee.Cmp(decimal.Zero) < 0 {
			continue
		}
		fees.Fees[exchange.CanonicalNetwork(network)] = fee
	}
	if len(fees.Fees) == 0 {
		return core.WithdrawalFees{}, fmt.Errorf("%w: no fee data for %s on %s", core.ErrNoFeeData, asset, exchangeName)
	}
	return fees, nil
}

func (r *FeeResolver) warn(exchangeName, asset string, err error) {
	if r.log == nil {
		return
	}
	r.log.WithFields(logrus.Fields{
		"exchange": exchangeName,
		"asset":    asset,
	}).WithError(err).Warn("live fee lookup failed, using config fallback")
}
