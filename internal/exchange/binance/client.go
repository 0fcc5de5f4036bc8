// Package binance implements the exchange client for Binance spot.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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

const name = "binance"

const (
	defaultBaseURL = "https://api.binance.com"
	// Documented alternate API cluster, used by the signature fallback.
	defaultAltBaseURL = "https://api1.binance.com"
)

type Client struct {
	exchange.Unsupported

	http *transport.Client

	mu          sync.Mutex
	symbols     []symbolInfo
	clockOffset time.Duration
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
		recvWindow: time.Duration(cfg.RecvWindowMs) * time.Millisecond,
		now:        c.serverNow,
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

// serverNow applies the cached clock offset so signed timestamps follow
// the exchange clock rather than the local one.
func (c *Client) serverNow() time.Time {
	c.mu.Lock()
	offset := c.clockOffset
	c.mu.Unlock()
	return time.Now().Add(offset)
}

func (c *Client) SyncTime(ctx context.Context) (time.Duration, error) {
	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/v3/time"})
	if err != nil {
		return 0, err
	}
	var resp serverTimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &transport.ProtocolError{Exchange: name, Err: err}
	}
	offset := time.Until(time.UnixMilli(resp.ServerTime))
	c.mu.Lock()
	c.clockOffset = offset
	c.mu.Unlock()
	return offset, nil
}

func (c *Client) Balance(ctx context.Context, asset string) (core.Balance, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return core.Balance{}, core.Invalidf("asset is required")
	}
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v3/account",
		Query:  url.Values{},
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.Balance{}, err
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Balance{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	bal := core.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		if free, err := decimal.NewFromString(b.Free); err == nil && free.Cmp(decimal.Zero) > 0 {
			bal.Free = free
		}
		if locked, err := decimal.NewFromString(b.Locked); err == nil && locked.Cmp(decimal.Zero) > 0 {
			bal.Locked = locked
		}
		break
	}
	return bal, nil
}

func (c *Client) OrderBook(ctx context.Context, base, quote string, depth int) (core.OrderBook, error) {
	info, err := c.resolveSymbol(ctx, base, quote)
	if err != nil {
		return core.OrderBook{}, err
	}
	if depth <= 0 {
		depth = 100
	}
	params := url.Values{}
	params.Set("symbol", info.symbol)
	params.Set("limit", strconv.Itoa(depth))
	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/v3/depth", Query: params})
	if err != nil {
		return core.OrderBook{}, err
	}
	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderBook{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	return core.OrderBook{
		Symbol: info.symbol,
		Bids:   parseLevels(resp.Bids),
		Asks:   parseLevels(resp.Asks),
	}, nil
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
	params := url.Values{}
	params.Set("symbol", info.symbol)
	params.Set("side", string(core.Buy))
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", quoteAmount.String())
	params.Set("newClientOrderId", clientOrderID())
	return c.submitOrder(ctx, params, core.Buy)
}

func (c *Client) MarketSell(ctx context.Context, base, quote string, baseAmount decimal.Decimal) (core.OrderResult, error) {
	if baseAmount.Cmp(decimal.Zero) <= 0 {
		return core.OrderResult{}, core.Invalidf("base amount must be positive, got %s", baseAmount)
	}
	info, err := c.resolveSymbol(ctx, base, quote)
	if err != nil {
		return core.OrderResult{}, err
	}
	price, err := c.tickerPrice(ctx, info.symbol)
	if err != nil {
		return core.OrderResult{}, err
	}
	qty, err := core.NormalizeSellQty(baseAmount, price, info.rules)
	if err != nil {
		return core.OrderResult{}, err
	}
	params := url.Values{}
	params.Set("symbol", info.symbol)
	params.Set("side", string(core.Sell))
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newClientOrderId", clientOrderID())
	return c.submitOrder(ctx, params, core.Sell)
}

func (c *Client) submitOrder(ctx context.Context, params url.Values, side core.Side) (core.OrderResult, error) {
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/api/v3/order",
		Query:  params,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.OrderResult{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderResult{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	qty, _ := decimal.NewFromString(resp.ExecutedQty)
	quoteQty, _ := decimal.NewFromString(resp.CumulativeQuoteQty)
	return core.OrderResult{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Symbol:  resp.Symbol,
		Side:    side,
		Qty:     qty,
		Quote:   quoteQty,
	}, nil
}

func (c *Client) WithdrawalFees(ctx context.Context, asset string) (core.WithdrawalFees, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	info, err := c.coinInfo(ctx, asset)
	if err != nil {
		return core.WithdrawalFees{}, err
	}
	fees := core.WithdrawalFees{Asset: asset, Fees: make(map[string]decimal.Decimal)}
	for _, n := range info.NetworkList {
		if !n.WithdrawEnable {
			continue
		}
		fee, err := decimal.NewFromString(n.WithdrawFee)
		if err != nil || fee.Cmp(decimal.Zero) <= 0 {
			continue
		}
		fees.Fees[exchange.CanonicalNetwork(n.Network)] = fee
	}
	return fees, nil
}

func (c *Client) DepositNetworks(ctx context.Context, asset string) ([]string, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	info, err := c.coinInfo(ctx, asset)
	if err != nil {
		return nil, err
	}
	networks := make([]string, 0, len(info.NetworkList))
	for _, n := range info.NetworkList {
		if n.DepositEnable {
			networks = append(networks, n.Network)
		}
	}
	return exchange.CanonicalNetworks(networks), nil
}

func (c *Client) DepositAddress(ctx context.Context, asset, network string) (core.Address, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	info, err := c.coinInfo(ctx, asset)
	if err != nil {
		return core.Address{}, err
	}
	providerNetwork := ""
	memoRequired := false
	for _, n := range info.NetworkList {
		if exchange.SameNetwork(n.Network, network) {
			providerNetwork = n.Network
			memoRequired = n.MemoRegex != ""
			break
		}
	}
	if providerNetwork == "" {
		return core.Address{}, fmt.Errorf("%w for %s on %s", core.ErrNoNetworkData, asset, network)
	}
	params := url.Values{}
	params.Set("coin", asset)
	params.Set("network", providerNetwork)
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/sapi/v1/capital/deposit/address",
		Query:  params,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.Address{}, err
	}
	var resp depositAddressResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Address{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	return core.Address{Address: resp.Address, Memo: resp.Tag, MemoRequired: memoRequired}, nil
}

func (c *Client) Withdraw(ctx context.Context, req core.WithdrawRequest) (string, error) {
	if err := exchange.ValidateWithdraw(req); err != nil {
		return "", err
	}
	if req.Memo == "" && exchange.MemoRequired(req.Network) {
		return "", fmt.Errorf("%w: network %s", core.ErrMemoRequired, req.Network)
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	info, err := c.coinInfo(ctx, asset)
	if err != nil {
		return "", err
	}
	providerNetwork := ""
	for _, n := range info.NetworkList {
		if exchange.SameNetwork(n.Network, req.Network) {
			providerNetwork = n.Network
			break
		}
	}
	if providerNetwork == "" {
		return "", fmt.Errorf("%w: %s cannot withdraw %s over %s", core.ErrNoNetworkData, name, asset, req.Network)
	}
	params := url.Values{}
	params.Set("coin", asset)
	params.Set("network", providerNetwork)
	params.Set("address", req.Address)
	params.Set("amount", req.Amount.String())
	params.Set("withdrawOrderId", clientOrderID())
	if req.Memo != "" {
		params.Set("addressTag", req.Memo)
	}
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/sapi/v1/capital/withdraw/apply",
		Query:  params,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return "", err
	}
	var resp withdrawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &transport.ProtocolError{Exchange: name, Err: err}
	}
	return resp.ID, nil
}

// coinInfo fetches the capital config entry for one asset. The endpoint
// only returns the full coin list, so the response is filtered here.
func (c *Client) coinInfo(ctx context.Context, asset string) (coinInfoResponse, error) {
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/sapi/v1/capital/config/getall",
		Query:  url.Values{},
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return coinInfoResponse{}, err
	}
	var resp []coinInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return coinInfoResponse{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	for _, coin := range resp {
		if coin.Coin == asset {
			return coin, nil
		}
	}
	return coinInfoResponse{}, fmt.Errorf("%w: %s does not list %s", core.ErrNoNetworkData, name, asset)
}

func (c *Client) tickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/v3/ticker/price", Query: params})
	if err != nil {
		return decimal.Zero, err
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, &transport.ProtocolError{Exchange: name, Err: err}
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, &transport.ProtocolError{Exchange: name, Err: err}
	}
	return price, nil
}

// resolveSymbol matches a base/quote pair against the cached symbol
// list. More than one trading candidate fails closed rather than
// guessing between reissued or prefixed tickers.
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

	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/v3/exchangeInfo"})
	if err != nil {
		return nil, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &transport.ProtocolError{Exchange: name, Err: err}
	}
	symbols := make([]symbolInfo, 0, len(resp.Symbols))
	for _, src := range resp.Symbols {
		if src.Status != "" && src.Status != "TRADING" {
			continue
		}
		symbols = append(symbols, parseSymbolInfo(src))
	}
	c.mu.Lock()
	c.symbols = symbols
	c.mu.Unlock()
	return symbols, nil
}

func clientOrderID() string {
	return "fr-" + uuid.NewString()
}
