// Package move orchestrates a cross-exchange asset transfer: withdraw
// on the sender, then poll the recipient balance until the deposit
// lands.
package move

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
	"fundrouter/internal/resolve"
	"fundrouter/internal/transport"
)

// State names the phases a move passes through. A move that aborts keeps
// the state it reached.
type State string

const (
	StateInitiated       State = "INITIATED"
	StateResolvedMarkets State = "FEES_AND_NETWORKS_RESOLVED"
	StateNetworkSelected State = "NETWORK_SELECTED"
	StateAddressResolved State = "ADDRESS_RESOLVED"
	StateWithdrawn       State = "WITHDRAWN"
	StatePollingDeposit  State = "POLLING_DEPOSIT"
	StateConfirmed       State = "CONFIRMED"
	StateTimedOut        State = "TIMED_OUT"
)

type Orchestrator struct {
	cfg      *config.Config
	registry *exchange.Registry
	fees     *resolve.FeeResolver
	networks *resolve.NetworkResolver
	log      logrus.FieldLogger

	pollInterval time.Duration
	maxWait      time.Duration
}

func New(cfg *config.Config, registry *exchange.Registry, fees *resolve.FeeResolver, networks *resolve.NetworkResolver, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		registry:     registry,
		fees:         fees,
		networks:     networks,
		log:          log,
		pollInterval: time.Duration(cfg.Polling.IntervalSec) * time.Second,
		maxWait:      time.Duration(cfg.Polling.MaxWaitSec) * time.Second,
	}
}

// candidate is a network both sides agree on, with the sender's fee.
type candidate struct {
	network string
	fee     decimal.Decimal
}

// Execute runs one move to completion or its first failure. The returned
// state reports how far the move progressed; after a withdrawal has been
// submitted the caller must treat even a failed result as money in
// flight.
func (o *Orchestrator) Execute(ctx context.Context, req core.MoveRequest) (core.MoveResult, State, error) {
	state := StateInitiated
	result := core.MoveResult{}

	if req.Amount.Cmp(decimal.Zero) <= 0 {
		return result, state, core.Invalidf("move amount must be positive, got %s", req.Amount)
	}
	sender, err := o.registry.Client(req.From)
	if err != nil {
		return result, state, err
	}
	recipient, err := o.registry.Client(req.To)
	if err != nil {
		return result, state, err
	}
	if !sender.Capabilities().Withdrawals {
		return result, state, &core.UnsupportedOperationError{Exchange: sender.Name(), Operation: "withdraw"}
	}
	if !recipient.Capabilities().Balances {
		return result, state, &core.UnsupportedOperationError{Exchange: recipient.Name(), Operation: "getBalance"}
	}

	// Baseline before anything moves. A missing balance counts as zero,
	// but a failed fetch aborts: a guessed-zero baseline would let any
	// pre-existing balance confirm a deposit that never arrived.
	bal, err := recipient.Balance(ctx, req.Asset)
	if err != nil {
		if ctx.Err() != nil {
			return result, state, fmt.Errorf("%w: baseline balance on %s", core.ErrInterrupted, recipient.Name())
		}
		return result, state, fmt.Errorf("baseline balance on %s: %w", recipient.Name(), err)
	}
	baseline := bal.Free

	candidates, err := o.resolveCandidates(ctx, sender, recipient, req.Asset)
	if err != nil {
		return result, state, err
	}
	state = StateResolvedMarkets

	selected := selectNetwork(candidates, o.cfg.PriorityList(req.Asset))
	state = StateNetworkSelected
	o.info(req, "network selected", logrus.Fields{
		"network": selected.network,
		"fee":     selected.fee.String(),
	})

	addr, ok := o.depositAddress(recipient.Name(), req.Asset, selected.network)
	if !ok || addr.Address == "" {
		return result, state, fmt.Errorf("%w: no %s address for %s on %s",
			core.ErrMissingAddress, selected.network, req.Asset, recipient.Name())
	}
	if addr.Memo == "" && (addr.MemoRequired || exchange.MemoRequired(selected.network)) {
		return result, state, fmt.Errorf("%w: %s deposit on %s needs a memo",
			core.ErrMemoRequired, selected.network, recipient.Name())
	}
	state = StateAddressResolved

	withdrawalID, err := sender.Withdraw(ctx, core.WithdrawRequest{
		Asset:   req.Asset,
		Amount:  req.Amount,
		Network: selected.network,
		Address: addr.Address,
		Memo:    addr.Memo,
	})
	if err != nil {
		return result, state, err
	}
	state = StateWithdrawn
	result.WithdrawalID = withdrawalID
	result.Network = selected.network
	result.Destination = recipient.Name()
	o.info(req, "withdrawal submitted", logrus.Fields{
		"network":       selected.network,
		"withdrawal_id": withdrawalID,
		"address":       addr.Address,
	})

	state = StatePollingDeposit
	if err := o.pollDeposit(ctx, recipient, req.Asset, baseline); err != nil {
		if ctx.Err() == nil {
			state = StateTimedOut
		}
		return result, state, err
	}
	state = StateConfirmed
	return result, state, nil
}

// resolveCandidates intersects the recipient's deposit networks with the
// sender's fee table. A network the recipient accepts but the sender
// publishes no fee for fails the move before any withdrawal.
func (o *Orchestrator) resolveCandidates(ctx context.Context, sender, recipient exchange.Client, asset string) ([]candidate, error) {
	fees, err := o.fees.Fees(ctx, sender, asset)
	if err != nil {
		return nil, err
	}
	networks, err := o.networks.DepositNetworks(ctx, recipient, asset)
	if err != nil {
		return nil, err
	}
	candidates := make([]candidate, 0, len(networks))
	for _, network := range networks {
		fee, ok := fees.Fees[network]
		if !ok {
			return nil, &core.MissingFeeForNetworkError{
				Exchange: sender.Name(),
				Asset:    asset,
				Network:  network,
			}
		}
		candidates = append(candidates, candidate{network: network, fee: fee})
	}
	return candidates, nil
}

// selectNetwork orders candidates by fee, then by position in the
// configured priority list (absent means last), then lexically.
func selectNetwork(candidates []candidate, priority []string) candidate {
	rank := make(map[string]int, len(priority))
	for i, network := range priority {
		rank[exchange.CanonicalNetwork(network)] = i
	}
	pos := func(network string) int {
		if i, ok := rank[network]; ok {
			return i
		}
		return len(priority)
	}
	sorted := append([]candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].fee.Cmp(sorted[j].fee); c != 0 {
			return c < 0
		}
		if pi, pj := pos(sorted[i].network), pos(sorted[j].network); pi != pj {
			return pi < pj
		}
		return sorted[i].network < sorted[j].network
	})
	return sorted[0]
}

func (o *Orchestrator) depositAddress(exchangeName, asset, network string) (config.AddressConfig, bool) {
	// Config keys may use any label for the network; match canonically.
	if addr, ok := o.cfg.DepositAddress(exchangeName, asset, network); ok {
		return addr, true
	}
	for label, addr := range o.cfg.AddressTable(exchangeName, asset) {
		if exchange.SameNetwork(label, network) {
			return addr, true
		}
	}
	return config.AddressConfig{}, false
}

// pollDeposit watches the recipient's free balance until it rises above
// the baseline or the wait budget is exhausted.
func (o *Orchestrator) pollDeposit(ctx context.Context, recipient exchange.Client, asset string, baseline decimal.Decimal) error {
	deadline := time.Now().Add(o.maxWait)
	for {
		if err := transport.Sleep(ctx, o.pollInterval); err != nil {
			return fmt.Errorf("%w: deposit poll on %s", core.ErrInterrupted, recipient.Name())
		}
		bal, err := recipient.Balance(ctx, asset)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: deposit poll on %s", core.ErrInterrupted, recipient.Name())
			}
			// Transient poll failures keep the watch alive.
			o.warn(recipient.Name(), asset, err)
		} else if bal.Free.Cmp(baseline) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s on %s did not rise above %s within %s",
				core.ErrDepositNotDetected, asset, recipient.Name(), baseline, o.maxWait)
		}
	}
}

func (o *Orchestrator) info(req core.MoveRequest, msg string, fields logrus.Fields) {
	if o.log == nil {
		return
	}
	o.log.WithFields(logrus.Fields{
		"from":   req.From,
		"to":     req.To,
		"asset":  req.Asset,
		"amount": req.Amount.String(),
	}).WithFields(fields).Info(msg)
}

func (o *Orchestrator) warn(exchangeName, asset string, err error) {
	if o.log == nil {
		return
	}
	o.log.WithFields(logrus.Fields{
		"exchange": exchangeName,
		"asset":    asset,
	}).WithError(err).Warn("deposit poll attempt failed")
}
