// Package book simulates order fills by walking depth snapshots.
package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fundrouter/internal/core"
)

// scale is the decimal scale used for partial quantities and averages.
const scale = 18

// Walk consumes levels in the order given until the target quote
// notional is exhausted. Callers pass asks (ascending price) to simulate
// a buy and bids (descending price) to simulate a sell; one routine
// serves both sides so rounding cannot diverge between them.
//
// Full levels are consumed while the remaining notional covers them; the
// last level is filled partially with the quantity truncated at 18
// digits. Levels with non-positive price or quantity are skipped.
func Walk(symbol string, levels []core.BookLevel, notional decimal.Decimal) (core.Fill, error) {
	if notional.Cmp(decimal.Zero) <= 0 {
		return core.Fill{}, core.Invalidf("notional must be positive, got %s", notional)
	}

	fill := core.Fill{Requested: notional}
	remaining := notional
	for _, lvl := range levels {
		if remaining.Cmp(decimal.Zero) == 0 {
			break
		}
		if lvl.Price.Cmp(decimal.Zero) <= 0 || lvl.Qty.Cmp(decimal.Zero) <= 0 {
			continue
		}
		levelValue := lvl.Price.Mul(lvl.Qty)
		if remaining.Cmp(levelValue) >= 0 {
			fill.Levels = append(fill.Levels, core.FillLevel{Price: lvl.Price, Qty: lvl.Qty, Quote: levelValue})
			fill.BaseFilled = fill.BaseFilled.Add(lvl.Qty)
			fill.Total = fill.Total.Add(levelValue)
			remaining = remaining.Sub(levelValue)
			continue
		}
		qty := remaining.DivRound(lvl.Price, scale+6).Truncate(scale)
		if qty.Cmp(decimal.Zero) > 0 && lvl.Price.Mul(qty).Cmp(remaining) > 0 {
			qty = qty.Sub(decimal.New(1, -scale))
		}
		if qty.Cmp(decimal.Zero) > 0 {
			quote := lvl.Price.Mul(qty)
			fill.Levels = append(fill.Levels, core.FillLevel{Price: lvl.Price, Qty: qty, Quote: quote})
			fill.BaseFilled = fill.BaseFilled.Add(qty)
			fill.Total = fill.Total.Add(quote)
		}
		remaining = decimal.Zero
		break
	}

	if fill.BaseFilled.Cmp(decimal.Zero) <= 0 {
		return core.Fill{}, fmt.Errorf("%w for %s", core.ErrInsufficientLiquidity, symbol)
	}
	fill.AveragePrice = fill.Total.DivRound(fill.BaseFilled, scale)
	return fill, nil
}

// WalkBase consumes levels until the target base quantity is exhausted.
// Callers pass bids (descending price) to simulate a sell sized in base
// units; BaseFilled never exceeds qty. Requested carries the base
// quantity rather than a notional.
func WalkBase(symbol string, levels []core.BookLevel, qty decimal.Decimal) (core.Fill, error) {
	if qty.Cmp(decimal.Zero) <= 0 {
		return core.Fill{}, core.Invalidf("qty must be positive, got %s", qty)
	}

	fill := core.Fill{Requested: qty}
	remaining := qty
	for _, lvl := range levels {
		if remaining.Cmp(decimal.Zero) == 0 {
			break
		}
		if lvl.Price.Cmp(decimal.Zero) <= 0 || lvl.Qty.Cmp(decimal.Zero) <= 0 {
			continue
		}
		take := lvl.Qty
		if remaining.Cmp(take) < 0 {
			take = remaining
		}
		quote := lvl.Price.Mul(take)
		fill.Levels = append(fill.Levels, core.FillLevel{Price: lvl.Price, Qty: take, Quote: quote})
		fill.BaseFilled = fill.BaseFilled.Add(take)
		fill.Total = fill.Total.Add(quote)
		remaining = remaining.Sub(take)
	}

	if fill.BaseFilled.Cmp(decimal.Zero) <= 0 {
		return core.Fill{}, fmt.Errorf("%w for %s", core.ErrInsufficientLiquidity, symbol)
	}
	fill.AveragePrice = fill.Total.DivRound(fill.BaseFilled, scale)
	return fill, nil
}
