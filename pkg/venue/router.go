package venue

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/multivenue/pkg/book"
)

// RoutedFill is one step of a smart sweep.
type RoutedFill struct {
	Venue string          `json:"venue"`
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// VenueFill rolls up a smart sweep per venue.
type VenueFill struct {
	FilledQty decimal.Decimal `json:"filledQty"`
	Notional  decimal.Decimal `json:"notional"`
}

// RoutedSweep is the outcome of a cross-venue execution simulation.
type RoutedSweep struct {
	Side         book.Side            `json:"side"`
	RequestedQty decimal.Decimal      `json:"requestedQty"`
	FilledQty    decimal.Decimal      `json:"filledQty"`
	RemainingQty decimal.Decimal      `json:"remainingQty"`
	Notional     decimal.Decimal      `json:"notional"`
	VWAP         decimal.NullDecimal  `json:"vwap"`
	Breakdown    []RoutedFill         `json:"breakdown"`
	PerVenue     map[string]VenueFill `json:"perVenue"`
}

type rung struct {
	venue string
	book.Level
}

// ladder concatenates the levels of one book side across venues and sorts
// them best first by price alone. Venues are appended in name order and the
// sort is stable, so equal prices keep that order.
func (m *MultiVenueBook) ladder(side book.Side) []rung {
	var out []rung
	for _, name := range m.Names() {
		for _, l := range m.venues[name].AllLevels(side) {
			out = append(out, rung{venue: name, Level: l})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if side == book.Buy {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// SmartSweepVWAP prices an immediate execution of qty against the resting
// liquidity of every venue as one virtual ladder: a buy takes the cheapest
// asks anywhere, a sell the richest bids. Priority is price only, with no
// venue preference, latency or fees. Nothing is sent and no venue is mutated.
func (m *MultiVenueBook) SmartSweepVWAP(side book.Side, qty decimal.Decimal) (RoutedSweep, error) {
	if !side.Valid() {
		return RoutedSweep{}, m.reject("", OpSmartSweep, fmt.Errorf("%w: %d", book.ErrInvalidSide, side))
	}
	if !qty.IsPositive() {
		return RoutedSweep{}, m.reject("", OpSmartSweep,
			fmt.Errorf("%w: quantity must be > 0, got %s", book.ErrInvalidQuantity, qty))
	}

	res := RoutedSweep{
		Side:         side,
		RequestedQty: qty,
		FilledQty:    decimal.Zero,
		RemainingQty: qty,
		Notional:     decimal.Zero,
		Breakdown:    []RoutedFill{},
		PerVenue:     make(map[string]VenueFill),
	}
	for _, r := range m.ladder(side.Opposite()) {
		if !res.RemainingQty.IsPositive() {
			break
		}
		take := decimal.Min(res.RemainingQty, r.Qty)
		if !take.IsPositive() {
			continue
		}
		notional := take.Mul(r.Price)
		res.Notional = res.Notional.Add(notional)
		res.FilledQty = res.FilledQty.Add(take)
		res.RemainingQty = res.RemainingQty.Sub(take)
		res.Breakdown = append(res.Breakdown, RoutedFill{Venue: r.venue, Price: r.Price, Qty: take})

		vf, ok := res.PerVenue[r.venue]
		if !ok {
			vf = VenueFill{FilledQty: decimal.Zero, Notional: decimal.Zero}
		}
		vf.FilledQty = vf.FilledQty.Add(take)
		vf.Notional = vf.Notional.Add(notional)
		res.PerVenue[r.venue] = vf
	}
	res.VWAP = book.VWAP(res.Notional, res.FilledQty)
	return res, nil
}

// ConsolidatedLevels merges every venue's levels on one book side by price
// and returns the top depth of the merged ladder, best first.
func (m *MultiVenueBook) ConsolidatedLevels(side book.Side, depth int) ([]book.Level, error) {
	if !side.Valid() {
		return nil, m.reject("", OpConsolidated, fmt.Errorf("%w: %d", book.ErrInvalidSide, side))
	}
	if depth <= 0 {
		return nil, m.reject("", OpConsolidated,
			fmt.Errorf("%w: depth must be > 0, got %d", book.ErrInvalidDepth, depth))
	}

	merged := make(map[string]*book.Level)
	for _, r := range m.ladder(side) {
		key := r.Price.String()
		if l, ok := merged[key]; ok {
			l.Qty = l.Qty.Add(r.Qty)
			continue
		}
		l := r.Level
		merged[key] = &l
	}

	out := make([]book.Level, 0, len(merged))
	for _, l := range merged {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if side == book.Buy {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if len(out) > depth {
		out = out[:depth]
	}
	return out, nil
}
