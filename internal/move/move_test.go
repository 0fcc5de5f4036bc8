package move

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundrouter/internal/config"
	"fundrouter/internal/core"
	"fundrouter/internal/exchange"
	"fundrouter/internal/resolve"
)

type stubClient struct {
	exchange.Unsupported
	caps core.Capabilities

	fees     core.WithdrawalFees
	networks []string

	mu        sync.Mutex
	balances  []decimal.Decimal
	balErrs   []error
	withdraws []core.WithdrawRequest
	wdErr     error
}

func (s *stubClient) Capabilities() core.Capabilities { return s.caps }

func (s *stubClient) WithdrawalFees(ctx context.Context, asset string) (core.WithdrawalFees, error) {
	return s.fees, nil
}

func (s *stubClient) DepositNetworks(ctx context.Context, asset string) ([]string, error) {
	return s.networks, nil
}

// Balance replays the configured error and value sequences, repeating
// the last value once errors are exhausted.
func (s *stubClient) Balance(ctx context.Context, asset string) (core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.balErrs) > 0 {
		err := s.balErrs[0]
		s.balErrs = s.balErrs[1:]
		if err != nil {
			return core.Balance{}, err
		}
	}
	free := decimal.Zero
	if len(s.balances) > 0 {
		free = s.balances[0]
		if len(s.balances) > 1 {
			s.balances = s.balances[1:]
		}
	}
	return core.Balance{Asset: asset, Free: free}, nil
}

func (s *stubClient) Withdraw(ctx context.Context, req core.WithdrawRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wdErr != nil {
		return "", s.wdErr
	}
	s.withdraws = append(s.withdraws, req)
	return "wd-42", nil
}

func (s *stubClient) withdrawCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.withdraws)
}

func feeTable(pairs map[string]string) core.WithdrawalFees {
	fees := core.WithdrawalFees{Asset: "USDT", Fees: make(map[string]decimal.Decimal, len(pairs))}
	for network, fee := range pairs {
		fees.Fees[network] = decimal.RequireFromString(fee)
	}
	return fees
}

func testConfig() *config.Config {
	return &config.Config{
		Addresses: map[string]map[string]map[string]config.AddressConfig{
			"beta": {
				"USDT": {
					"TRC20": {Address: "Tdest"},
					"ERC20": {Address: "0xdest"},
				},
			},
		},
	}
}

func newTestOrchestrator(cfg *config.Config, sender, recipient *stubClient) *Orchestrator {
	registry := exchange.NewRegistry()
	registry.Register(sender, true)
	registry.Register(recipient, true)
	o := New(cfg, registry,
		resolve.NewFeeResolver(cfg, nil),
		resolve.NewNetworkResolver(cfg, nil), nil)
	o.pollInterval = time.Millisecond
	o.maxWait = 200 * time.Millisecond
	return o
}

func newSender(fees map[string]string) *stubClient {
	return &stubClient{
		Unsupported: exchange.Unsupported{Exchange: "alpha"},
		caps:        core.Capabilities{Withdrawals: true, WithdrawalFees: true},
		fees:        feeTable(fees),
	}
}

func newRecipient(networks []string, balances ...string) *stubClient {
	c := &stubClient{
		Unsupported: exchange.Unsupported{Exchange: "beta"},
		caps:        core.Capabilities{Balances: true, DepositNetworks: true},
		networks:    networks,
	}
	for _, b := range balances {
		c.balances = append(c.balances, decimal.RequireFromString(b))
	}
	return c
}

func TestExecuteConfirmsDeposit(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1", "ERC20": "10"})
	recipient := newRecipient([]string{"TRC20", "ERC20"}, "50", "50", "75")
	o := newTestOrchestrator(testConfig(), sender, recipient)

	result, state, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if state != StateConfirmed {
		t.Fatalf("state = %s, want %s", state, StateConfirmed)
	}
	if result.WithdrawalID != "wd-42" || result.Network != "TRC20" || result.Destination != "beta" {
		t.Fatalf("result = %+v", result)
	}
	if sender.withdrawCount() != 1 {
		t.Fatalf("withdraw called %d times", sender.withdrawCount())
	}
	req := sender.withdraws[0]
	if req.Address != "Tdest" || req.Network != "TRC20" {
		t.Fatalf("withdraw request = %+v", req)
	}
}

func TestExecuteBaselineFetchErrorAborts(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1"})
	// The recipient holds a pre-existing balance but its first balance
	// read fails; a zero-guessed baseline would confirm instantly.
	recipient := newRecipient([]string{"TRC20"}, "50")
	recipient.balErrs = []error{errors.New("gateway timeout")}
	o := newTestOrchestrator(testConfig(), sender, recipient)

	_, state, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	if err == nil {
		t.Fatalf("Execute() confirmed with no deposit observed")
	}
	if state != StateInitiated {
		t.Fatalf("state = %s, want %s", state, StateInitiated)
	}
	if sender.withdrawCount() != 0 {
		t.Fatalf("withdraw called after baseline failure")
	}
}

func TestExecutePicksCheapestNetwork(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "5", "ERC20": "1"})
	recipient := newRecipient([]string{"TRC20", "ERC20"}, "0", "0", "25")
	o := newTestOrchestrator(testConfig(), sender, recipient)

	result, _, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Network != "ERC20" {
		t.Fatalf("network = %s, want cheapest ERC20", result.Network)
	}
}

func TestExecuteMissingFeeAborts(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1"})
	recipient := newRecipient([]string{"TRC20", "ERC20"}, "0")
	o := newTestOrchestrator(testConfig(), sender, recipient)

	_, state, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	var missing *core.MissingFeeForNetworkError
	if !errors.As(err, &missing) {
		t.Fatalf("Execute() error = %v, want MissingFeeForNetworkError", err)
	}
	if missing.Network != "ERC20" {
		t.Fatalf("missing network = %s", missing.Network)
	}
	if state != StateInitiated {
		t.Fatalf("state = %s, want %s", state, StateInitiated)
	}
	if sender.withdrawCount() != 0 {
		t.Fatalf("withdraw called before abort")
	}
}

func TestExecuteMissingAddressAborts(t *testing.T) {
	sender := newSender(map[string]string{"SOL": "0.1"})
	recipient := newRecipient([]string{"SOL"}, "0")
	o := newTestOrchestrator(testConfig(), sender, recipient)

	_, state, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	if !errors.Is(err, core.ErrMissingAddress) {
		t.Fatalf("Execute() error = %v, want ErrMissingAddress", err)
	}
	if state != StateNetworkSelected {
		t.Fatalf("state = %s, want %s", state, StateNetworkSelected)
	}
	if sender.withdrawCount() != 0 {
		t.Fatalf("withdraw called before abort")
	}
}

func TestExecuteMemoRequiredAborts(t *testing.T) {
	cfg := testConfig()
	cfg.Addresses["beta"]["XRP"] = map[string]config.AddressConfig{
		"XRP": {Address: "rDest", MemoRequired: true},
	}
	sender := newSender(map[string]string{"XRP": "0.2"})
	sender.fees.Asset = "XRP"
	recipient := newRecipient([]string{"XRP"}, "0")
	o := newTestOrchestrator(cfg, sender, recipient)

	_, state, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "XRP",
		Amount: decimal.RequireFromString("25"),
	})
	if !errors.Is(err, core.ErrMemoRequired) {
		t.Fatalf("Execute() error = %v, want ErrMemoRequired", err)
	}
	if state != StateNetworkSelected {
		t.Fatalf("state = %s, want %s", state, StateNetworkSelected)
	}
	if sender.withdrawCount() != 0 {
		t.Fatalf("withdraw called before abort")
	}
}

func TestExecuteTimesOut(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1"})
	recipient := newRecipient([]string{"TRC20"}, "50") // never rises
	o := newTestOrchestrator(testConfig(), sender, recipient)
	o.maxWait = 10 * time.Millisecond

	result, state, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	if !errors.Is(err, core.ErrDepositNotDetected) {
		t.Fatalf("Execute() error = %v, want ErrDepositNotDetected", err)
	}
	if state != StateTimedOut {
		t.Fatalf("state = %s, want %s", state, StateTimedOut)
	}
	// The withdrawal went out even though the deposit never showed.
	if result.WithdrawalID != "wd-42" {
		t.Fatalf("result = %+v, want withdrawal id preserved", result)
	}
}

func TestExecuteCancelledDuringPoll(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1"})
	recipient := newRecipient([]string{"TRC20"}, "50")
	o := newTestOrchestrator(testConfig(), sender, recipient)
	o.pollInterval = 50 * time.Millisecond
	o.maxWait = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, state, err := o.Execute(ctx, core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	if !errors.Is(err, core.ErrInterrupted) {
		t.Fatalf("Execute() error = %v, want ErrInterrupted", err)
	}
	if state != StatePollingDeposit {
		t.Fatalf("state = %s, want %s", state, StatePollingDeposit)
	}
}

func TestExecuteRejectsNonPositiveAmount(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1"})
	recipient := newRecipient([]string{"TRC20"})
	o := newTestOrchestrator(testConfig(), sender, recipient)

	_, _, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.Zero,
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("Execute() error = %v, want validation failure", err)
	}
}

func TestExecuteSenderCannotWithdraw(t *testing.T) {
	sender := newSender(map[string]string{"TRC20": "1"})
	sender.caps.Withdrawals = false
	recipient := newRecipient([]string{"TRC20"})
	o := newTestOrchestrator(testConfig(), sender, recipient)

	_, _, err := o.Execute(context.Background(), core.MoveRequest{
		From: "alpha", To: "beta", Asset: "USDT",
		Amount: decimal.RequireFromString("25"),
	})
	var unsupported *core.UnsupportedOperationError
	if !errors.As(err, &unsupported) || unsupported.Operation != "withdraw" {
		t.Fatalf("Execute() error = %v, want withdraw refusal", err)
	}
}

func TestSelectNetworkOrdering(t *testing.T) {
	candidates := []candidate{
		{network: "ERC20", fee: decimal.RequireFromString("2")},
		{network: "BSC", fee: decimal.RequireFromString("1")},
		{network: "TRC20", fee: decimal.RequireFromString("1")},
	}
	// Equal fees fall back to the priority list.
	got := selectNetwork(candidates, []string{"TRC20", "BSC"})
	if got.network != "TRC20" {
		t.Fatalf("selected %s, want priority winner TRC20", got.network)
	}
	// No priority: equal fees resolve lexically.
	got = selectNetwork(candidates, nil)
	if got.network != "BSC" {
		t.Fatalf("selected %s, want lexical winner BSC", got.network)
	}
}

func TestSelectNetworkAbsentPriorityRanksLast(t *testing.T) {
	candidates := []candidate{
		{network: "ARBITRUM", fee: decimal.RequireFromString("1")},
		{network: "MATIC", fee: decimal.RequireFromString("1")},
	}
	got := selectNetwork(candidates, []string{"MATIC"})
	if got.network != "MATIC" {
		t.Fatalf("selected %s, want listed MATIC", got.network)
	}
}
