// Package exchange defines the capability-gated client abstraction that
// normalizes per-exchange REST dialects into one operation set.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundrouter/internal/core"
)

// Client is the uniform operation set over one exchange. Implementations
// embed Unsupported and override only the operations their Capabilities
// declare; callers check Capabilities before invoking so unsupported
// operations fail without a network call.
type Client interface {
	Name() string
	Capabilities() core.Capabilities

	Balance(ctx context.Context, asset string) (core.Balance, error)
	WithdrawalFees(ctx context.Context, asset string) (core.WithdrawalFees, error)
	OrderBook(ctx context.Context, base, quote string, depth int) (core.OrderBook, error)
	MarketBuy(ctx context.Context, base, quote string, quoteAmount decimal.Decimal) (core.OrderResult, error)
	MarketSell(ctx context.Context, base, quote string, baseAmount decimal.Decimal) (core.OrderResult, error)
	Withdraw(ctx context.Context, req core.WithdrawRequest) (string, error)
	DepositNetworks(ctx context.Context, asset string) ([]string, error)
	DepositAddress(ctx context.Context, asset, network string) (core.Address, error)
	SyncTime(ctx context.Context) (time.Duration, error)
}

// ValidateWithdraw applies the checks every implementation must perform
// before calling the remote API.
func ValidateWithdraw(req core.WithdrawRequest) error {
	if req.Amount.Cmp(decimal.Zero) <= 0 {
		return core.Invalidf("withdraw amount must be positive, got %s", req.Amount)
	}
	if req.Address == "" {
		return core.Invalidf("withdraw address must not be blank")
	}
	return nil
}
