package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrBelowMinQty      = errors.New("qty below exchange minimum")
	ErrBelowMinNotional = errors.New("notional below exchange minimum")
)

// NormalizeSellQty rounds a base quantity down to the symbol's step and
// validates it against the minimum quantity and, when a reference price
// is known, the minimum notional. Violations fail before any remote call.
func NormalizeSellQty(qty, price decimal.Decimal, rules Rules) (decimal.Decimal, error) {
	if qty.Cmp(decimal.Zero) <= 0 {
		return qty, Invalidf("qty must be positive, got %s", qty)
	}
	if rules.QtyStep.Cmp(decimal.Zero) > 0 {
		qty = RoundDown(qty, rules.QtyStep)
	}
	if qty.Cmp(decimal.Zero) <= 0 {
		return qty, ErrBelowMinQty
	}
	if rules.MinQty.Cmp(decimal.Zero) > 0 && qty.Cmp(rules.MinQty) < 0 {
		return qty, ErrBelowMinQty
	}
	if price.Cmp(decimal.Zero) > 0 && rules.MinNotional.Cmp(decimal.Zero) > 0 {
		if qty.Mul(price).Cmp(rules.MinNotional) < 0 {
			return qty, ErrBelowMinNotional
		}
	}
	return qty, nil
}

// ValidateBuyNotional checks a quote-denominated market buy against the
// symbol's minimum notional.
func ValidateBuyNotional(notional decimal.Decimal, rules Rules) error {
	if notional.Cmp(decimal.Zero) <= 0 {
		return Invalidf("notional must be positive, got %s", notional)
	}
	if rules.MinNotional.Cmp(decimal.Zero) > 0 && notional.Cmp(rules.MinNotional) < 0 {
		return ErrBelowMinNotional
	}
	return nil
}

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
