package ascendex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

const name = "ascendex"

const defaultBaseURL = "https://ascendex.com"

type Client struct {
	exchange.Unsupported

	http *transport.Client

	mu           sync.Mutex
	accountGroup string
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
		Balances:    true,
		Withdrawals: true,
		TimeSync:    true,
	}
}

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
	body, err := c.http.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/api/pro/v1/time"})
	if err != nil {
		return 0, err
	}
	var data struct {
		RequestTimeEcho int64 `json:"requestTimeEcho"`
		RequestReceived int64 `json:"requestReceiveAt"`
	}
	if err := c.data(body, &data); err != nil {
		return 0, err
	}
	return time.Until(time.UnixMilli(data.RequestReceived)), nil
}

func (c *Client) Balance(ctx context.Context, asset string) (core.Balance, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return core.Balance{}, core.Invalidf("asset is required")
	}
	group, err := c.resolveAccountGroup(ctx)
	if err != nil {
		return core.Balance{}, err
	}
	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/" + group + "/api/pro/v1/cash/balance",
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return core.Balance{}, err
	}
	var entries []balanceEntry
	if err := c.data(body, &entries); err != nil {
		return core.Balance{}, err
	}
	bal := core.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
	for _, entry := range entries {
		if !strings.EqualFold(entry.Asset, asset) {
			continue
		}
		total, err := decimal.NewFromString(entry.TotalBalance)
		if err != nil {
			continue
		}
		free, err := decimal.NewFromString(entry.AvailableBalance)
		if err != nil {
			continue
		}
		if free.Cmp(decimal.Zero) < 0 {
			free = decimal.Zero
		}
		bal.Free = free
		if locked := total.Sub(free); locked.Cmp(decimal.Zero) > 0 {
			bal.Locked = locked
		}
		break
	}
	return bal, nil
}

func (c *Client) Withdraw(ctx context.Context, req core.WithdrawRequest) (string, error) {
	if err := exchange.ValidateWithdraw(req); err != nil {
		return "", err
	}
	if req.Memo == "" && exchange.MemoRequired(req.Network) {
		return "", fmt.Errorf("%w: network %s", core.ErrMemoRequired, req.Network)
	}
	group, err := c.resolveAccountGroup(ctx)
	if err != nil {
		return "", err
	}
	payload := withdrawPayload{
		RequestID:  uuid.NewString(),
		Time:       time.Now().UnixMilli(),
		Asset:      strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:     req.Amount.String(),
		Blockchain: exchange.CanonicalNetwork(req.Network),
	}
	payload.DestAddress.Address = req.Address
	payload.DestAddress.DestTag = req.Memo
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/" + group + "/api/pro/v1/wallet/withdraw",
		Body:   body,
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return "", err
	}
	var data struct {
		RequestID string `json:"requestId"`
	}
	if err := c.data(resp, &data); err != nil {
		return "", err
	}
	if data.RequestID != "" {
		return data.RequestID, nil
	}
	return payload.RequestID, nil
}

// resolveAccountGroup memoizes the account-group id; every account
// route is prefixed with it.
func (c *Client) resolveAccountGroup(ctx context.Context) (string, error) {
	c.mu.Lock()
	group := c.accountGroup
	c.mu.Unlock()
	if group != "" {
		return group, nil
	}

	body, err := c.http.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/api/pro/v1/info",
		Auth:   transport.AuthSigned,
	})
	if err != nil {
		return "", err
	}
	var data struct {
		AccountGroup int64 `json:"accountGroup"`
	}
	if err := c.data(body, &data); err != nil {
		return "", err
	}
	if data.AccountGroup < 0 {
		return "", &transport.ProtocolError{Exchange: name, Err: fmt.Errorf("negative account group %d", data.AccountGroup)}
	}
	group = strconv.FormatInt(data.AccountGroup, 10)
	c.mu.Lock()
	c.accountGroup = group
	c.mu.Unlock()
	return group, nil
}

type balanceEntry struct {
	Asset            string `json:"asset"`
	TotalBalance     string `json:"totalBalance"`
	AvailableBalance string `json:"availableBalance"`
}

type withdrawPayload struct {
	RequestID   string `json:"requestId"`
	Time        int64  `json:"time"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Blockchain  string `json:"blockchain"`
	DestAddress struct {
		Address string `json:"address"`
		DestTag string `json:"destTag,omitempty"`
	} `json:"destAddress"`
}
