package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation indicates bad caller input; no remote call was made.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedExchange indicates the exchange name resolves to no registered client.
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	// ErrInsufficientLiquidity indicates the order book could not fill any of the request.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrNoFeeData indicates no withdrawal fee data from the API or fallback config.
	ErrNoFeeData = errors.New("no withdrawal fee data")
	// ErrNoNetworkData indicates no deposit network data from the API or fallback config.
	ErrNoNetworkData = errors.New("no deposit network data")
	// ErrMissingAddress indicates no configured destination address for the selected network.
	ErrMissingAddress = errors.New("withdrawal address not configured")
	// ErrMemoRequired indicates the target network requires a memo and none was supplied.
	ErrMemoRequired = errors.New("memo required")
	// ErrDepositNotDetected indicates polling exhausted its deadline after a withdrawal.
	ErrDepositNotDetected = errors.New("deposit not detected")
	// ErrInterrupted indicates an operation was cancelled while waiting.
	ErrInterrupted = errors.New("interrupted")
)

// Invalidf wraps ErrValidation with a formatted message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UnsupportedOperationError is returned when an operation is called on an
// exchange whose capability flags do not declare it.
type UnsupportedOperationError struct {
	Exchange  string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return e.Exchange + " does not support " + e.Operation
}

// AmbiguousSymbolError is returned when a base/quote pair maps to more
// than one listed trading symbol. Resolution fails closed rather than
// guessing between candidates.
type AmbiguousSymbolError struct {
	Base       string
	Quote      string
	Candidates []string
}

func (e *AmbiguousSymbolError) Error() string {
	return fmt.Sprintf("ambiguous symbol for %s/%s: candidates %s",
		e.Base, e.Quote, strings.Join(e.Candidates, ", "))
}

// MissingFeeForNetworkError is returned when a candidate deposit network
// has no known withdrawal fee. Proceeding would allow an unbounded-fee
// withdrawal, so this is a configuration error, not a skippable case.
type MissingFeeForNetworkError struct {
	Exchange string
	Asset    string
	Network  string
}

func (e *MissingFeeForNetworkError) Error() string {
	return fmt.Sprintf("no withdrawal fee for %s %s on network %s", e.Exchange, e.Asset, e.Network)
}
