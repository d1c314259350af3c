package book

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Levels returns the top depth aggregated price levels of one side of the
// book, best first: bids high to low, asks low to high.
func (ob *OrderBook) Levels(side Side, depth int) ([]Level, error) {
	if err := validateSide(side); err != nil {
		return nil, ob.rejectHard(OpLevels, "", err)
	}
	if depth <= 0 {
		return nil, ob.rejectHard(OpLevels, "", fmt.Errorf("%w: depth must be > 0, got %d", ErrInvalidDepth, depth))
	}
	levels := ob.side(side).snapshot()
	if len(levels) > depth {
		levels = levels[:depth]
	}
	return levels, nil
}

// AllLevels returns every aggregated level of one side, best first.
func (ob *OrderBook) AllLevels(side Side) []Level {
	if !side.Valid() {
		return nil
	}
	return ob.side(side).snapshot()
}

// SimulateSweepVWAP prices an immediate execution of qty against the current
// book without touching it. A buy walks the asks upward, a sell walks the
// bids downward.
func (ob *OrderBook) SimulateSweepVWAP(side Side, qty decimal.Decimal) (SweepResult, error) {
	if err := validateSide(side); err != nil {
		return SweepResult{}, ob.rejectHard(OpSweep, "", err)
	}
	if !qty.IsPositive() {
		return SweepResult{}, ob.rejectHard(OpSweep, "", fmt.Errorf("%w: quantity must be > 0, got %s", ErrInvalidQuantity, qty))
	}
	return Sweep(side, qty, ob.side(side.Opposite()).snapshot()), nil
}

// Sweep walks an already ordered ladder, taking min(remaining, level qty) at
// each level until qty is exhausted or the ladder runs out.
func Sweep(side Side, qty decimal.Decimal, ladder []Level) SweepResult {
	res := SweepResult{
		Side:         side,
		RequestedQty: qty,
		FilledQty:    decimal.Zero,
		RemainingQty: qty,
		Notional:     decimal.Zero,
		Breakdown:    []Fill{},
	}
	for _, l := range ladder {
		if !res.RemainingQty.IsPositive() {
			break
		}
		take := decimal.Min(res.RemainingQty, l.Qty)
		if !take.IsPositive() {
			continue
		}
		res.Notional = res.Notional.Add(take.Mul(l.Price))
		res.FilledQty = res.FilledQty.Add(take)
		res.RemainingQty = res.RemainingQty.Sub(take)
		res.Breakdown = append(res.Breakdown, Fill{Price: l.Price, Qty: take})
	}
	res.VWAP = VWAP(res.Notional, res.FilledQty)
	return res
}

// VWAP returns notional / qty, or an invalid NullDecimal when qty is zero.
func VWAP(notional, qty decimal.Decimal) decimal.NullDecimal {
	if !qty.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(notional.Div(qty))
}

// VWMALastNTrades is the volume-weighted average price of the most recent n
// trades (fewer if the log is shorter). It reports false when there are no
// trades to average or their combined quantity is zero.
func (ob *OrderBook) VWMALastNTrades(n int) (decimal.Decimal, bool) {
	window := ob.RecentTrades(n)
	if len(window) == 0 {
		return decimal.Zero, false
	}
	notional, volume := decimal.Zero, decimal.Zero
	for _, t := range window {
		notional = notional.Add(t.Notional())
		volume = volume.Add(t.Qty)
	}
	v := VWAP(notional, volume)
	return v.Decimal, v.Valid
}

// Trades returns a copy of the whole trade log.
func (ob *OrderBook) Trades() []Trade {
	out := make([]Trade, len(ob.trades))
	copy(out, ob.trades)
	return out
}

// TradeCount is the length of the trade log.
func (ob *OrderBook) TradeCount() int { return len(ob.trades) }

// RecentTrades returns the last n trades in chronological order.
func (ob *OrderBook) RecentTrades(n int) []Trade {
	if n <= 0 {
		return nil
	}
	start := len(ob.trades) - n
	if start < 0 {
		start = 0
	}
	out := make([]Trade, len(ob.trades)-start)
	copy(out, ob.trades[start:])
	return out
}

// LastPrice returns the price of the most recent trade.
func (ob *OrderBook) LastPrice() (decimal.Decimal, bool) {
	if len(ob.trades) == 0 {
		return decimal.Zero, false
	}
	return ob.trades[len(ob.trades)-1].Price, true
}

// MidPrice returns the midpoint of the best bid and best ask.
// Returns false if the book is empty or one-sided.
func (ob *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, ask := ob.bids.best(), ob.asks.best()
	if bid == nil || ask == nil {
		return decimal.Zero, false
	}
	return bid.price.Add(ask.price).Div(two), true
}

// Spread returns best ask minus best bid.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, ask := ob.bids.best(), ob.asks.best()
	if bid == nil || ask == nil {
		return decimal.Zero, false
	}
	return ask.price.Sub(bid.price), true
}
