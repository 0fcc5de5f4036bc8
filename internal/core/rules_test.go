package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeSellQtyRoundsToStep(t *testing.T) {
	rules := Rules{
		MinQty:      decimal.RequireFromString("0.01"),
		MinNotional: decimal.RequireFromString("10"),
		QtyStep:     decimal.RequireFromString("0.001"),
	}
	got, err := NormalizeSellQty(decimal.RequireFromString("0.123456"), decimal.RequireFromString("100"), rules)
	if err != nil {
		t.Fatalf("NormalizeSellQty() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.123")) {
		t.Fatalf("unexpected rounded qty: %s", got)
	}
}

func TestNormalizeSellQtyBelowMinQty(t *testing.T) {
	rules := Rules{MinQty: decimal.RequireFromString("0.01")}
	_, err := NormalizeSellQty(decimal.RequireFromString("0.009"), decimal.RequireFromString("100"), rules)
	if !errors.Is(err, ErrBelowMinQty) {
		t.Fatalf("NormalizeSellQty() error = %v, want %v", err, ErrBelowMinQty)
	}
}

func TestNormalizeSellQtyRoundedToZero(t *testing.T) {
	rules := Rules{QtyStep: decimal.RequireFromString("1")}
	_, err := NormalizeSellQty(decimal.RequireFromString("0.4"), decimal.Zero, rules)
	if !errors.Is(err, ErrBelowMinQty) {
		t.Fatalf("NormalizeSellQty() error = %v, want %v", err, ErrBelowMinQty)
	}
}

func TestNormalizeSellQtyBelowMinNotional(t *testing.T) {
	rules := Rules{MinNotional: decimal.RequireFromString("10")}
	_, err := NormalizeSellQty(decimal.RequireFromString("0.05"), decimal.RequireFromString("100"), rules)
	if !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("NormalizeSellQty() error = %v, want %v", err, ErrBelowMinNotional)
	}
}

func TestNormalizeSellQtyRejectsNonPositive(t *testing.T) {
	_, err := NormalizeSellQty(decimal.Zero, decimal.Zero, Rules{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("NormalizeSellQty() error = %v, want %v", err, ErrValidation)
	}
}

func TestValidateBuyNotional(t *testing.T) {
	rules := Rules{MinNotional: decimal.RequireFromString("5")}
	if err := ValidateBuyNotional(decimal.RequireFromString("5"), rules); err != nil {
		t.Fatalf("ValidateBuyNotional(5) error = %v", err)
	}
	if err := ValidateBuyNotional(decimal.RequireFromString("4.99"), rules); !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("ValidateBuyNotional(4.99) error = %v, want %v", err, ErrBelowMinNotional)
	}
	if err := ValidateBuyNotional(decimal.Zero, rules); !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidateBuyNotional(0) error = %v, want %v", err, ErrValidation)
	}
}

func TestRoundDown(t *testing.T) {
	cases := []struct {
		value, step, want string
	}{
		{"0.123456", "0.001", "0.123"},
		{"100.037", "0.01", "100.03"},
		{"7", "0", "7"},
		{"0.009", "0.01", "0"},
	}
	for _, tc := range cases {
		got := RoundDown(decimal.RequireFromString(tc.value), decimal.RequireFromString(tc.step))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("RoundDown(%s, %s) = %s, want %s", tc.value, tc.step, got, tc.want)
		}
	}
}
