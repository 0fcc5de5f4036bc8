package exchange

import (
	"errors"
	"testing"

	"fundrouter/internal/core"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Binance", "binance"},
		{" KuCoin ", "kucoin"},
		{"Bit-True", "bitrue"},
		{"bittrue", "bitrue"},
		{"Ascend", "ascendex"},
		{"AscendEX", "ascendex"},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Unsupported{Exchange: "bitrue"}, false)

	c, err := reg.Client("BitTrue")
	if err != nil {
		t.Fatalf("Client(BitTrue) error = %v", err)
	}
	if c.Name() != "bitrue" {
		t.Fatalf("Client(BitTrue).Name() = %q", c.Name())
	}
	if reg.HasSecrets("bitrue") {
		t.Fatalf("HasSecrets(bitrue) = true, want false")
	}

	_, err = reg.Client("ftx")
	if !errors.Is(err, core.ErrUnsupportedExchange) {
		t.Fatalf("Client(ftx) error = %v, want ErrUnsupportedExchange", err)
	}
}

func TestUnsupportedRefusesEverything(t *testing.T) {
	u := Unsupported{Exchange: "mexc"}
	_, err := u.Balance(nil, "BTC")
	var unsupported *core.UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Balance() error = %v, want UnsupportedOperationError", err)
	}
	if unsupported.Exchange != "mexc" || unsupported.Operation != "getBalance" {
		t.Fatalf("error fields = %+v", unsupported)
	}
}
