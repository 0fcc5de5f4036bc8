package kucoin

import (
	"github.com/shopspring/decimal"

	"fundrouter/internal/core"
)

type accountEntry struct {
	Currency  string `json:"currency"`
	Type      string `json:"type"`
	Balance   string `json:"balance"`
	Available string `json:"available"`
	Holds     string `json:"holds"`
}

type symbolEntry struct {
	Symbol         string `json:"symbol"`
	BaseCurrency   string `json:"baseCurrency"`
	QuoteCurrency  string `json:"quoteCurrency"`
	BaseMinSize    string `json:"baseMinSize"`
	BaseIncrement  string `json:"baseIncrement"`
	PriceIncrement string `json:"priceIncrement"`
	MinFunds       string `json:"minFunds"`
	EnableTrading  bool   `json:"enableTrading"`
}

type symbolInfo struct {
	symbol     string
	baseAsset  string
	quoteAsset string
	rules      core.Rules
}

func parseSymbol(src symbolEntry) symbolInfo {
	info := symbolInfo{
		symbol:     src.Symbol,
		baseAsset:  src.BaseCurrency,
		quoteAsset: src.QuoteCurrency,
	}
	if v, err := decimal.NewFromString(src.BaseMinSize); err == nil {
		info.rules.MinQty = v
	}
	if v, err := decimal.NewFromString(src.BaseIncrement); err == nil {
		info.rules.QtyStep = v
	}
	if v, err := decimal.NewFromString(src.PriceIncrement); err == nil {
		info.rules.PriceTick = v
	}
	if v, err := decimal.NewFromString(src.MinFunds); err == nil {
		info.rules.MinNotional = v
	}
	return info
}

type orderBookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type chainEntry struct {
	ChainName         string `json:"chainName"`
	ChainID           string `json:"chainId"`
	WithdrawalMinFee  string `json:"withdrawalMinFee"`
	IsWithdrawEnabled bool   `json:"isWithdrawEnabled"`
	IsDepositEnabled  bool   `json:"isDepositEnabled"`
}

type currencyData struct {
	Currency string       `json:"currency"`
	Chains   []chainEntry `json:"chains"`
}

type depositAddressData struct {
	Address string `json:"address"`
	Memo    string `json:"memo"`
	Chain   string `json:"chain"`
}

type withdrawalData struct {
	WithdrawalID string `json:"withdrawalId"`
}

type orderData struct {
	OrderID string `json:"orderId"`
}

func parseLevels(raw [][]string) []core.BookLevel {
	levels := make([]core.BookLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(entry[1])
		if err != nil {
			continue
		}
		levels = append(levels, core.BookLevel{Price: price, Qty: qty})
	}
	return levels
}
