package book

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side { return -s }

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Order is a resting or incoming limit order. Qty is the residual quantity.
type Order struct {
	ID    string          `json:"id"`
	Side  Side            `json:"side"`
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
	Seq   uint64          `json:"seq"`
}

// Trade is one matching event. ID is its 1-based position in the book's trade log.
type Trade struct {
	ID     uint64          `json:"id"`
	Buyer  string          `json:"buyer"`
	Seller string          `json:"seller"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
}

// Notional returns price * qty.
func (t Trade) Notional() decimal.Decimal { return t.Price.Mul(t.Qty) }

// Level is an aggregated price level (L2 depth entry).
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Fill is one step of a simulated sweep.
type Fill struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// MarketResult summarises a market order. Market orders never rest, so this
// is the only record of how much was left unfilled.
type MarketResult struct {
	OrderID      string          `json:"orderId"`
	Side         Side            `json:"side"`
	RequestedQty decimal.Decimal `json:"requestedQty"`
	FilledQty    decimal.Decimal `json:"filledQty"`
	RemainingQty decimal.Decimal `json:"remainingQty"`
}

// SweepResult is the outcome of a non-mutating execution simulation.
// VWAP is null when nothing could be filled.
type SweepResult struct {
	Side         Side                `json:"side"`
	RequestedQty decimal.Decimal     `json:"requestedQty"`
	FilledQty    decimal.Decimal     `json:"filledQty"`
	RemainingQty decimal.Decimal     `json:"remainingQty"`
	Notional     decimal.Decimal     `json:"notional"`
	VWAP         decimal.NullDecimal `json:"vwap"`
	Breakdown    []Fill              `json:"breakdown"`
}
