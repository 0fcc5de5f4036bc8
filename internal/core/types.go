package core

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Balance is a single-asset balance on one exchange. Free and Locked are
// never negative after normalization; a missing locked amount is zero.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// OrderBook holds a depth snapshot. Bids are sorted by descending price,
// asks by ascending price, as returned by the exchange.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

// FillLevel is one consumed level of a simulated fill.
type FillLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
	Quote decimal.Decimal
}

// Fill is the result of walking one side of an order book for a target
// quote notional.
type Fill struct {
	Requested    decimal.Decimal
	Total        decimal.Decimal
	BaseFilled   decimal.Decimal
	AveragePrice decimal.Decimal
	Levels       []FillLevel
}

// WithdrawalFees maps canonical network tokens to the withdrawal fee for
// one asset on one exchange. Only positive, parseable fees are retained.
type WithdrawalFees struct {
	Asset string
	Fees  map[string]decimal.Decimal
}

// Address is a configured deposit destination for (exchange, asset, network).
type Address struct {
	Address      string
	Memo         string
	MemoRequired bool
}

type WithdrawRequest struct {
	Asset   string
	Amount  decimal.Decimal
	Network string
	Address string
	Memo    string
}

type OrderResult struct {
	OrderID string
	Symbol  string
	Side    Side
	Qty     decimal.Decimal
	Quote   decimal.Decimal
}

type MoveRequest struct {
	From   string
	To     string
	Asset  string
	Amount decimal.Decimal
}

// MoveResult reports a completed or in-flight move: the sender's
// withdrawal id (may be empty), the chosen network, and the recipient
// exchange name.
type MoveResult struct {
	WithdrawalID string
	Network      string
	Destination  string
}

// Rules are per-symbol order constraints published by the exchange.
type Rules struct {
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	PriceTick   decimal.Decimal
	QtyStep     decimal.Decimal
}

// Capabilities declares which operations an exchange client implements.
// An operation whose flag is false is rejected before any network call.
type Capabilities struct {
	Balances        bool
	WithdrawalFees  bool
	OrderBook       bool
	MarketOrders    bool
	Withdrawals     bool
	TimeSync        bool
	DepositNetworks bool
}
