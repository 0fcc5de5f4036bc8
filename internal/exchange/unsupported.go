package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundrouter/internal/core"
)

// Unsupported implements every Client operation by refusing it. Concrete
// clients embed it so an exchange only has to write the operations it
// actually supports; everything else is rejected before any network call
// with an error naming the exchange.
type Unsupported struct {
	Exchange string
}

func (u Unsupported) refuse(op string) error {
	return &core.UnsupportedOperationError{Exchange: u.Exchange, Operation: op}
}

func (u Unsupported) Name() string { return u.Exchange }

func (u Unsupported) Capabilities() core.Capabilities { return core.Capabilities{} }

func (u Unsupported) Balance(ctx context.Context, asset string) (core.Balance, error) {
	return core.Balance{}, u.refuse("getBalance")
}

func (u Unsupported) WithdrawalFees(ctx context.Context, asset string) (core.WithdrawalFees, error) {
	return core.WithdrawalFees{}, u.refuse("getWithdrawalFees")
}

func (u Unsupported) OrderBook(ctx context.Context, base, quote string, depth int) (core.OrderBook, error) {
	return core.OrderBook{}, u.refuse("getOrderBook")
}

func (u Unsupported) MarketBuy(ctx context.Context, base, quote string, quoteAmount decimal.Decimal) (core.OrderResult, error) {
	return core.OrderResult{}, u.refuse("marketBuy")
}

func (u Unsupported) MarketSell(ctx context.Context, base, quote string, baseAmount decimal.Decimal) (core.OrderResult, error) {
	return core.OrderResult{}, u.refuse("marketSell")
}

func (u Unsupported) Withdraw(ctx context.Context, req core.WithdrawRequest) (string, error) {
	return "", u.refuse("withdraw")
}

func (u Unsupported) DepositNetworks(ctx context.Context, asset string) ([]string, error) {
	return nil, u.refuse("getDepositNetworks")
}

func (u Unsupported) DepositAddress(ctx context.Context, asset, network string) (core.Address, error) {
	return core.Address{}, u.refuse("getDepositAddress")
}

func (u Unsupported) SyncTime(ctx context.Context) (time.Duration, error) {
	return 0, u.refuse("syncTime")
}
