// Package kucoin implements the exchange client for KuCoin spot.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
	"fundrouter/internal/transport"
)

const name = "kucoin"

const (
	defaultBaseURL    = "https://api.kucoin.com"
	defaultAltBaseURL = "https://openapi-v2.kucoin.com"
)

type Client struct {
	exchange.Unsupported

	http *transport.Client

	mu      sync.Mutex
	symbols []symbolInfo
}

func New(cfg config.ExchangeConfig, retry config.RetryConfig, log logrus.FieldLogger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	altBaseURL := cfg.AltBaseURL
	if altBaseURL == "" {
		altBaseURL = defaultAltBaseURL
	}
	c := &Client{Unsupported: exchange.Unsupported{Exchange: name}}
	b := &builder{
		baseURL:    baseURL,
		altBaseURL: altBaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		passphrase: cfg.Passphrase,
		now:        time.Now,
	}
	c.http = transport.NewClient(b, classifier{}, transport.Options{
		Exchange:       name,
		MaxAttempts:    retry.MaxAttempts,
		InitialBackoff: time.Duration(retry.InitialBackoffMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		Log:            log,
	})
	return c
}

func (c *Client) Name() string { return name }

func (c *Client) Capabilities() core.Capabilities {
	return core.Capabilities{
		Balances:        true,
		WithdrawalFees:  true,
		OrderBook:       true,
		MarketOrders:    true,
		Withdrawals:     true,
		TimeSync:        true,
		DepositNetworks: true,
	}
}

// data unwraps the kucoin response envelope into out.
func (c *Client) data(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &transport.ProtocolError{Exchange: name, Err: err}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &transport.ProtocolError{Exchange: name, Err: err}
	}
	return nil
}

func (c *Client) SyncTime(ctx context.Context) (time.Duration, error) {
	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/v1/timestamp"})
	if err != nil {
		return 0, err
	}
	var ms int64
	if err := c.data(body, &ms); err != nil {
		return 0, err
	}
	return time.Until(time.UnixMilli(ms)), nil
}

func (c *Client) Balance(ctx context.Context, asset string) (core.Balance, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return core.Balance{}, core.Invalidf("asset is required")
	}
	params := url.Values{}
	params.Set("currency", asset)
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/accounts",
		Query:  params,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.Balance{}, err
	}
	var accounts []accountEntry
	if err := c.data(body, &accounts); err != nil {
		return core.Balance{}, err
	}
	bal := core.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
	for _, acc := range accounts {
		if acc.Currency != asset {
			continue
		}
		if free, err := decimal.NewFromString(acc.Available); err == nil && free.Cmp(decimal.Zero) > 0 {
			bal.Free = bal.Free.Add(free)
		}
		if holds, err := decimal.NewFromString(acc.Holds); err == nil && holds.Cmp(decimal.Zero) > 0 {
			bal.Locked = bal.Locked.Add(holds)
		}
	}
	return bal, nil
}

func (c *Client) OrderBook(ctx context.Context, base, quote string, depth int) (core.OrderBook, error) {
	info, err := c.resolveSymbol(ctx, base, quote)
	if err != nil {
		return core.OrderBook{}, err
	}
	params := url.Values{}
	params.Set("symbol", info.symbol)
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/market/orderbook/level2_100",
		Query:  params,
	})
	if err != nil {
		return core.OrderBook{}, err
	}
	var data orderBookData
	if err := c.data(body, &data); err != nil {
		return core.OrderBook{}, err
	}
	book := core.OrderBook{
		Symbol: info.symbol,
		Bids:   parseLevels(data.Bids),
		Asks:   parseLevels(data.Asks),
	}
	if depth > 0 {
		if len(book.Bids) > depth {
			book.Bids = book.Bids[:depth]
		}
		if len(book.Asks) > depth {
			book.Asks = book.Asks[:depth]
		}
	}
	return book, nil
}

func (c *Client) MarketBuy(ctx context.Context, base, quote string, quoteAmount decimal.Decimal) (core.OrderResult, error) {
	if quoteAmount.Cmp(decimal.Zero) <= 0 {
		return core.OrderResult{}, core.Invalidf("quote amount must be positive, got %s", quoteAmount)
	}
	info, err := c.resolveSymbol(ctx, base, quote)
	if err != nil {
		return core.OrderResult{}, err
	}
	if err := core.ValidateBuyNotional(quoteAmount, info.rules); err != nil {
		return core.OrderResult{}, err
	}
	return c.submitOrder(ctx, info.symbol, core.Buy, map[string]string{"funds": quoteAmount.String()}, quoteAmount, decimal.Zero)
}

func (c *Client) MarketSell(ctx context.Context, base, quote string, baseAmount decimal.Decimal) (core.OrderResult, error) {
	if baseAmount.Cmp(decimal.Zero) <= 0 {
		return core.OrderResult{}, core.Invalidf("base amount must be positive, got %s", baseAmount)
	}
	info, err := c.resolveSymbol(ctx, base, quote)
	if err != nil {
		return core.OrderResult{}, err
	}
	qty, err := core.NormalizeSellQty(baseAmount, decimal.Zero, info.rules)
	if err != nil {
		return core.OrderResult{}, err
	}
	return c.submitOrder(ctx, info.symbol, core.Sell, map[string]string{"size": qty.String()}, decimal.Zero, qty)
}

func (c *Client) submitOrder(ctx context.Context, symbol string, side core.Side, amount map[string]string, quote, qty decimal.Decimal) (core.OrderResult, error) {
	payload := map[string]string{
		"clientOid": uuid.NewString(),
		"side":      strings.ToLower(string(side)),
		"symbol":    symbol,
		"type":      "market",
	}
	for k, v := range amount {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.OrderResult{}, err
	}
	resp, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/orders",
		Body:   body,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.OrderResult{}, err
	}
	var data orderData
	if err := c.data(resp, &data); err != nil {
		return core.OrderResult{}, err
	}
	return core.OrderResult{
		OrderID: data.OrderID,
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
		Quote:   quote,
	}, nil
}

func (c *Client) WithdrawalFees(ctx context.Context, asset string) (core.WithdrawalFees, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	chains, err := c.currencyChains(ctx, asset)
	if err != nil {
		return core.WithdrawalFees{}, err
	}
	fees := core.WithdrawalFees{Asset: asset, Fees: make(map[string]decimal.Decimal)}
	for _, chain := range chains {
		if !chain.IsWithdrawEnabled {
			continue
		}
		fee, err := decimal.NewFromString(chain.WithdrawalMinFee)
		if err != nil || fee.Cmp(decimal.Zero) <= 0 {
			continue
		}
		fees.Fees[exchange.CanonicalNetwork(chain.ChainName)] = fee
	}
	return fees, nil
}

func (c *Client) DepositNetworks(ctx context.Context, asset string) ([]string, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	chains, err := c.currencyChains(ctx, asset)
	if err != nil {
		return nil, err
	}
	networks := make([]string, 0, len(chains))
	for _, chain := range chains {
		if chain.IsDepositEnabled {
			networks = append(networks, chain.ChainName)
		}
	}
	return exchange.CanonicalNetworks(networks), nil
}

func (c *Client) DepositAddress(ctx context.Context, asset, network string) (core.Address, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	chainID, err := c.chainID(ctx, asset, network)
	if err != nil {
		return core.Address{}, err
	}
	params := url.Values{}
	params.Set("currency", asset)
	params.Set("chain", chainID)
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/deposit-addresses",
		Query:  params,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.Address{}, err
	}
	var data depositAddressData
	if err := c.data(body, &data); err != nil {
		return core.Address{}, err
	}
	return core.Address{
		Address:      data.Address,
		Memo:         data.Memo,
		MemoRequired: exchange.MemoRequired(network),
	}, nil
}

func (c *Client) Withdraw(ctx context.Context, req core.WithdrawRequest) (string, error) {
	if err := exchange.ValidateWithdraw(req); err != nil {
		return "", err
	}
	if req.Memo == "" && exchange.MemoRequired(req.Network) {
		return "", fmt.Errorf("%w: network %s", core.ErrMemoRequired, req.Network)
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	chainID, err := c.chainID(ctx, asset, req.Network)
	if err != nil {
		return "", err
	}
	payload := map[string]string{
		"currency": asset,
		"address":  req.Address,
		"amount":   req.Amount.String(),
		"chain":    chainID,
	}
	if req.Memo != "" {
		payload["memo"] = req.Memo
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/withdrawals",
		Body:   body,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return "", err
	}
	var data withdrawalData
	if err := c.data(resp, &data); err != nil {
		return "", err
	}
	return data.WithdrawalID, nil
}

// chainID maps a caller network onto the provider chain identifier by
// canonical-token comparison against the currency's chain list.
func (c *Client) chainID(ctx context.Context, asset, network string) (string, error) {
	chains, err := c.currencyChains(ctx, asset)
	if err != nil {
		return "", err
	}
	for _, chain := range chains {
		if exchange.SameNetwork(chain.ChainName, network) || exchange.SameNetwork(chain.ChainID, network) {
			if chain.ChainID != "" {
				return chain.ChainID, nil
			}
			return chain.ChainName, nil
		}
	}
	return "", fmt.Errorf("%w: %s does not list %s on %s", core.ErrNoNetworkData, name, asset, network)
}

func (c *Client) currencyChains(ctx context.Context, asset string) ([]chainEntry, error) {
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v3/currencies/" + asset,
	})
	if err != nil {
		return nil, err
	}
	var data currencyData
	if err := c.data(body, &data); err != nil {
		return nil, err
	}
	return data.Chains, nil
}

func (c *Client) resolveSymbol(ctx context.Context, base, quote string) (symbolInfo, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return symbolInfo{}, core.Invalidf("base and quote assets are required")
	}
	symbols, err := c.loadSymbols(ctx)
	if err != nil {
		return symbolInfo{}, err
	}
	var matches []symbolInfo
	for _, info := range symbols {
		if info.baseAsset == base && info.quoteAsset == quote {
			matches = append(matches, info)
		}
	}
	switch len(matches) {
	case 0:
		return symbolInfo{}, core.Invalidf("%s lists no symbol for %s/%s", name, base, quote)
	case 1:
		return matches[0], nil
	}
	candidates := make([]string, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, m.symbol)
	}
	return symbolInfo{}, &core.AmbiguousSymbolError{Base: base, Quote: quote, Candidates: candidates}
}

func (c *Client) loadSymbols(ctx context.Context) ([]symbolInfo, error) {
	c.mu.Lock()
	if c.symbols != nil {
		symbols := c.symbols
		c.mu.Unlock()
		return symbols, nil
	}
	c.mu.Unlock()

	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/v2/symbols"})
	if err != nil {
		return nil, err
	}
	var entries []symbolEntry
	if err := c.data(body, &entries); err != nil {
		return nil, err
	}
	symbols := make([]symbolInfo, 0, len(entries))
	for _, src := range entries {
		if !src.EnableTrading {
			continue
		}
		symbols = append(symbols, parseSymbol(src))
	}
	c.mu.Lock()
	c.symbols = symbols
	c.mu.Unlock()
	return symbols, nil
}
