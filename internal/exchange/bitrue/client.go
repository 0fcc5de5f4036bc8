// Package bitrue implements a partial exchange client for Bitrue. The
// API is a subset of the binance signed-query dialect.
package bitrue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
	"fundrouter/internal/transport"
)

const name = "bitrue"

const defaultBaseURL = "https://openapi.bitrue.com"

type Client struct {
	exchange.Unsupported

	http *transport.Client
}

func New(cfg config.ExchangeConfig, retry config.RetryConfig, log logrus.FieldLogger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{Unsupported: exchange.Unsupported{Exchange: name}}
	b := &builder{
		baseURL:    baseURL,
		altBaseURL: cfg.AltBaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: time.Duration(cfg.RecvWindowMs) * time.Millisecond,
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
		Balances:  true,
		OrderBook: true,
	}
}

func (c *Client) Balance(ctx context.Context, asset string) (core.Balance, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return core.Balance{}, core.Invalidf("asset is required")
	}
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/account",
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.Balance{}, err
	}
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Balance{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	bal := core.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
	for _, entry := range resp.Balances {
		if !strings.EqualFold(entry.Asset, asset) {
			continue
		}
		if free, err := decimal.NewFromString(entry.Free); err == nil && free.Cmp(decimal.Zero) > 0 {
			bal.Free = free
		}
		if locked, err := decimal.NewFromString(entry.Locked); err == nil && locked.Cmp(decimal.Zero) > 0 {
			bal.Locked = locked
		}
		break
	}
	return bal, nil
}

func (c *Client) OrderBook(ctx context.Context, base, quote string, depth int) (core.OrderBook, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return core.OrderBook{}, core.Invalidf("base and quote assets are required")
	}
	symbol := base + quote
	params := url.Values{}
	params.Set("symbol", symbol)
	if depth > 0 {
		params.Set("limit", strconv.Itoa(depth))
	}
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/v1/depth",
		Query:  params,
	})
	if err != nil {
		return core.OrderBook{}, err
	}
	var resp struct {
		Bids [][]json.Number `json:"bids"`
		Asks [][]json.Number `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderBook{}, &transport.ProtocolError{Exchange: name, Err: err}
	}
	return core.OrderBook{
		Symbol: symbol,
		Bids:   parseLevels(resp.Bids),
		Asks:   parseLevels(resp.Asks),
	}, nil
}

func parseLevels(raw [][]json.Number) []core.BookLevel {
	levels := make([]core.BookLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := decimal.NewFromString(entry[0].String())
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(entry[1].String())
		if err != nil {
			continue
		}
		levels = append(levels, core.BookLevel{Price: price, Qty: qty})
	}
	return levels
}

// builder mirrors the binance signed-query scheme against the bitrue
// hosts.
type builder struct {
	baseURL    string
	altBaseURL string
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	now        func() time.Time
}

func (b *builder) Build(ctx context.Context, r transport.Request, v transport.Variant) (*http.Request, error) {
	base := b.baseURL
	switch v {
	case transport.VariantHostPort:
		base = transport.HostWithPort(base)
	case transport.VariantAltBase:
		if b.altBaseURL != "" {
			base = b.altBaseURL
		}
	}

	params := url.Values{}
	for k, vs := range r.Query {
		params[k] = append([]string(nil), vs...)
	}
	var query string
	if r.Auth == transport.AuthSigned {
		params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
		if b.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(b.recvWindow.Milliseconds(), 10))
		}
		payload := params.Encode()
		if v == transport.VariantRawQuery {
			payload = transport.RawQueryEncode(params)
		}
		mac := hmac.New(sha256.New, []byte(b.apiSecret))
		mac.Write([]byte(payload))
		query = payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))
	} else {
		query = params.Encode()
	}

	urlStr := base + r.Path
	if query != "" {
		urlStr += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	if r.Auth != transport.AuthNone {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}
	return req, nil
}

type classifier struct{}

func (classifier) Classify(status int, body []byte) error {
	if status/100 == 2 {
		return nil
	}
	var e struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Msg == "" {
		return &transport.ProtocolError{
			Exchange: name,
			Err:      fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(body))),
		}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		e.Code == -1022, e.Code == -2014, e.Code == -2015:
		return &transport.AuthError{Exchange: name, Code: strconv.Itoa(e.Code), Msg: e.Msg}
	}
	return &transport.RemoteError{Exchange: name, Code: strconv.Itoa(e.Code), Msg: e.Msg}
}
