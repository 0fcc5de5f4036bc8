// Package cli parses operator commands and renders results. Every
// command answers with an OK or FAILED line; failure text passes through
// the secret redactor before it reaches the terminal.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundrouter/internal/book"
	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
	"fundrouter/internal/logging"
	"fundrouter/internal/move"
	"fundrouter/internal/resolve"
)

const defaultBookDepth = 50

type Dispatcher struct {
	cfg      *config.Config
	registry *exchange.Registry
	fees     *resolve.FeeResolver
	networks *resolve.NetworkResolver
	mover    *move.Orchestrator
	log      logrus.FieldLogger
}

func NewDispatcher(cfg *config.Config, registry *exchange.Registry, log logrus.FieldLogger) *Dispatcher {
	fees := resolve.NewFeeResolver(cfg, log)
	networks := resolve.NewNetworkResolver(cfg, log)
	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		fees:     fees,
		networks: networks,
		mover:    move.New(cfg, registry, fees, networks, log),
		log:      log,
	}
}

// Execute runs one command line. exit is true when the operator asked to
// leave the loop.
func (d *Dispatcher) Execute(ctx context.Context, line string) (out string, exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	switch cmd {
	case "exit", "quit":
		return "", true
	case "help":
		return helpText, false
	}

	result, err := d.dispatch(ctx, cmd, args)
	if err != nil {
		return "FAILED: " + logging.Redact(err.Error()), false
	}
	return "OK: " + result, false
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd string, args []string) (string, error) {
	switch cmd {
	case "balance":
		return d.balance(ctx, args)
	case "fees":
		return d.feesCmd(ctx, args)
	case "orderbook":
		return d.orderbook(ctx, args)
	case "buy":
		return d.trade(ctx, core.Buy, args)
	case "sell":
		return d.trade(ctx, core.Sell, args)
	case "networks":
		return d.networksCmd(ctx, args)
	case "move":
		return d.moveCmd(ctx, args)
	case "time":
		return d.timeCmd(ctx, args)
	}
	return "", core.Invalidf("unknown command %q, try help", cmd)
}

func (d *Dispatcher) balance(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", core.Invalidf("usage: balance <exchange> <asset>")
	}
	client, err := d.registry.Client(args[0])
	if err != nil {
		return "", err
	}
	bal, err := client.Balance(ctx, args[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s free=%s locked=%s total=%s",
		client.Name(), bal.Asset, bal.Free, bal.Locked, bal.Total()), nil
}

func (d *Dispatcher) feesCmd(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", core.Invalidf("usage: fees <exchange> <asset>")
	}
	client, err := d.registry.Client(args[0])
	if err != nil {
		return "", err
	}
	fees, err := d.fees.Fees(ctx, client, strings.ToUpper(args[1]))
	if err != nil {
		return "", err
	}
	networks := make([]string, 0, len(fees.Fees))
	for network := range fees.Fees {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	parts := make([]string, 0, len(networks))
	for _, network := range networks {
		parts = append(parts, network+"="+fees.Fees[network].String())
	}
	return fmt.Sprintf("%s %s withdrawal fees: %s",
		client.Name(), fees.Asset, strings.Join(parts, " ")), nil
}

func (d *Dispatcher) orderbook(ctx context.Context, args []string) (string, error) {
	if len(args) != 3 {
		return "", core.Invalidf("usage: orderbook <exchange> <base> <quote>")
	}
	client, err := d.registry.Client(args[0])
	if err != nil {
		return "", err
	}
	bookSnap, err := client.OrderBook(ctx, args[1], args[2], defaultBookDepth)
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("%s %s", client.Name(), bookSnap.Symbol)
	if len(bookSnap.Bids) > 0 {
		out += fmt.Sprintf(" best_bid=%s@%s", bookSnap.Bids[0].Qty, bookSnap.Bids[0].Price)
	}
	if len(bookSnap.Asks) > 0 {
		out += fmt.Sprintf(" best_ask=%s@%s", bookSnap.Asks[0].Qty, bookSnap.Asks[0].Price)
	}
	out += fmt.Sprintf(" depth=%d/%d", len(bookSnap.Bids), len(bookSnap.Asks))
	return out, nil
}

// trade simulates a market order through the depth walker; with -x it
// also submits the order.
func (d *Dispatcher) trade(ctx context.Context, side core.Side, args []string) (string, error) {
	execute := false
	filtered := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-x" {
			execute = true
			continue
		}
		filtered = append(filtered, arg)
	}
	if len(filtered) != 4 {
		return "", core.Invalidf("usage: %s <exchange> <base> <quote> <amount> [-x]",
			strings.ToLower(string(side)))
	}
	client, err := d.registry.Client(filtered[0])
	if err != nil {
		return "", err
	}
	base, quote := filtered[1], filtered[2]
	amount, err := decimal.NewFromString(filtered[3])
	if err != nil {
		return "", core.Invalidf("amount %q is not a number", filtered[3])
	}

	bookSnap, err := client.OrderBook(ctx, base, quote, defaultBookDepth)
	if err != nil {
		return "", err
	}
	// Buys are sized in quote, sells in base; each walks its own side
	// in its own unit so a thin top level cannot inflate the fill.
	var fill core.Fill
	if side == core.Buy {
		fill, err = book.Walk(bookSnap.Symbol, bookSnap.Asks, amount)
	} else {
		fill, err = book.WalkBase(bookSnap.Symbol, bookSnap.Bids, amount)
	}
	if err != nil {
		return "", err
	}
	out := fmt.Sprintf("simulated %s %s: base=%s quote=%s avg_price=%s levels=%d",
		strings.ToLower(string(side)), bookSnap.Symbol,
		fill.BaseFilled, fill.Total, fill.AveragePrice, len(fill.Levels))

	if !execute {
		return out, nil
	}
	var result core.OrderResult
	if side == core.Buy {
		result, err = client.MarketBuy(ctx, base, quote, amount)
	} else {
		result, err = client.MarketSell(ctx, base, quote, amount)
	}
	if err != nil {
		return "", err
	}
	return out + fmt.Sprintf("; executed order %s qty=%s quote=%s",
		result.OrderID, result.Qty, result.Quote), nil
}

func (d *Dispatcher) networksCmd(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", core.Invalidf("usage: networks <exchange> <asset>")
	}
	client, err := d.registry.Client(args[0])
	if err != nil {
		return "", err
	}
	networks, err := d.networks.DepositNetworks(ctx, client, strings.ToUpper(args[1]))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s deposit networks: %s",
		client.Name(), strings.ToUpper(args[1]), strings.Join(networks, " ")), nil
}

func (d *Dispatcher) moveCmd(ctx context.Context, args []string) (string, error) {
	if len(args) != 4 {
		return "", core.Invalidf("usage: move <from> <to> <asset> <amount>")
	}
	// A move signs requests on both sides; refuse before the
	// orchestrator rather than failing at a remote gateway.
	for _, name := range args[:2] {
		if !d.registry.HasSecrets(name) {
			return "", core.Invalidf("move needs api credentials configured for %s", name)
		}
	}
	amount, err := decimal.NewFromString(args[3])
	if err != nil {
		return "", core.Invalidf("amount %q is not a number", args[3])
	}
	req := core.MoveRequest{
		From:   args[0],
		To:     args[1],
		Asset:  strings.ToUpper(args[2]),
		Amount: amount,
	}
	result, state, err := d.mover.Execute(ctx, req)
	if err != nil {
		if state == move.StateWithdrawn || state == move.StatePollingDeposit || state == move.StateTimedOut {
			// The withdrawal is already on its way.
			return "", fmt.Errorf("state %s, withdrawal %q over %s to %s in flight: %w",
				state, result.WithdrawalID, result.Network, result.Destination, err)
		}
		return "", fmt.Errorf("state %s: %w", state, err)
	}
	return fmt.Sprintf("moved %s %s %s -> %s over %s, withdrawal %q confirmed",
		amount, req.Asset, req.From, req.To, result.Network, result.WithdrawalID), nil
}

func (d *Dispatcher) timeCmd(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", core.Invalidf("usage: time <exchange>")
	}
	client, err := d.registry.Client(args[0])
	if err != nil {
		return "", err
	}
	offset, err := client.SyncTime(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s clock offset %s", client.Name(), offset), nil
}

const helpText = `commands:
  balance <exchange> <asset>
  fees <exchange> <asset>
  orderbook <exchange> <base> <quote>
  buy <exchange> <base> <quote> <quoteAmount> [-x]
  sell <exchange> <base> <quote> <baseAmount> [-x]
  networks <exchange> <asset>
  move <from> <to> <asset> <amount>
  time <exchange>
  help
  exit`

// Run reads command lines until EOF, exit, or ctx cancellation.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "fundrouter ready, type help for commands")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, exit := d.Execute(ctx, scanner.Text())
		if exit {
			return nil
		}
		if line != "" {
			fmt.Fprintln(out, line)
		}
	}
}
