package bitrue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.ExchangeConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		APISecret:      "test-secret",
		HTTPTimeoutSec: 5,
		RecvWindowMs:   5000,
	}, config.RetryConfig{MaxAttempts: 1, InitialBackoffMs: 1}, nil)
}

func TestBalanceSignsRequest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/account" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Fatalf("missing api key header")
		}
		q := r.URL.Query()
		if q.Get("signature") == "" || q.Get("timestamp") == "" {
			t.Fatalf("unsigned request: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"balances":[
			{"asset":"XRP","free":"250","locked":"10"},
			{"asset":"USDT","free":"0","locked":"0"}]}`))
	}))
	bal, err := c.Balance(context.Background(), "xrp")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if !bal.Free.Equal(decimal.RequireFromString("250")) || !bal.Locked.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("Balance() = %+v", bal)
	}
}

func TestOrderBookNumericLevels(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/depth" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "XRPUSDT" {
			t.Fatalf("symbol = %q", r.URL.Query().Get("symbol"))
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Fatalf("limit = %q", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"bids":[[0.52,1000],["0.51","2000"]],"asks":[["0.53","500"]]}`))
	}))
	book, err := c.OrderBook(context.Background(), "XRP", "USDT", 5)
	if err != nil {
		t.Fatalf("OrderBook() error = %v", err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("levels = %d bids, %d asks", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("0.52")) {
		t.Fatalf("best bid = %s", book.Bids[0].Price)
	}
}

func TestUnsupportedWithdraw(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected remote call %s", r.URL.Path)
	}))
	_, err := c.Withdraw(context.Background(), core.WithdrawRequest{
		Asset:   "XRP",
		Network: "XRP",
		Address: "rAbc",
		Memo:    "123",
		Amount:  decimal.RequireFromString("10"),
	})
	var unsupported *core.UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Withdraw() error = %v, want UnsupportedOperationError", err)
	}
	if unsupported.Exchange != "bitrue" || unsupported.Operation != "withdraw" {
		t.Fatalf("error = %+v", unsupported)
	}
}
