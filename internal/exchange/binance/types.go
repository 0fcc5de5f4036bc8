package binance

import (
	"github.com/shopspring/decimal"

	"fundrouter/internal/core"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type depthResponse struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type orderResponse struct {
	OrderID            int64  `json:"orderId"`
	Symbol             string `json:"symbol"`
	ExecutedQty        string `json:"executedQty"`
	CumulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

type withdrawResponse struct {
	ID string `json:"id"`
}

type depositAddressResponse struct {
	Address string `json:"address"`
	Tag     string `json:"tag"`
}

type coinInfoResponse struct {
	Coin        string `json:"coin"`
	NetworkList []struct {
		Network        string `json:"network"`
		Name           string `json:"name"`
		WithdrawFee    string `json:"withdrawFee"`
		WithdrawEnable bool   `json:"withdrawEnable"`
		DepositEnable  bool   `json:"depositEnable"`
		MemoRegex      string `json:"memoRegex"`
	} `json:"networkList"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfoResponse `json:"symbols"`
}

type symbolInfoResponse struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	Filters    []struct {
		FilterType  string `json:"filterType"`
		MinQty      string `json:"minQty"`
		StepSize    string `json:"stepSize"`
		MinNotional string `json:"minNotional"`
		TickSize    string `json:"tickSize"`
	} `json:"filters"`
}

type symbolInfo struct {
	symbol     string
	baseAsset  string
	quoteAsset string
	rules      core.Rules
}

func parseSymbolInfo(src symbolInfoResponse) symbolInfo {
	info := symbolInfo{
		symbol:     src.Symbol,
		baseAsset:  src.BaseAsset,
		quoteAsset: src.QuoteAsset,
	}
	for _, f := range src.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if v, err := decimal.NewFromString(f.MinQty); err == nil {
				info.rules.MinQty = v
			}
			if v, err := decimal.NewFromString(f.StepSize); err == nil {
				info.rules.QtyStep = v
			}
		case "PRICE_FILTER":
			if v, err := decimal.NewFromString(f.TickSize); err == nil {
				info.rules.PriceTick = v
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			if v, err := decimal.NewFromString(f.MinNotional); err == nil {
				// Keep the stricter minimum when both filters are present.
				if v.Cmp(info.rules.MinNotional) > 0 {
					info.rules.MinNotional = v
				}
			}
		}
	}
	return info
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
