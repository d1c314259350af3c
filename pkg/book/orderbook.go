package book

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderBook is a single-venue price-time-priority matching engine.
//
// It is not safe for concurrent use; callers that share a book across
// goroutines must serialise access themselves.
type OrderBook struct {
	name string

	bids *bookSide
	asks *bookSide

	// Order index for O(1) cancellation
	index map[string]*Order

	seq    uint64  // last assigned order sequence
	trades []Trade // append-only, chronological

	listeners Listeners
}

// NewOrderBook creates an empty book. name labels the events it emits.
func NewOrderBook(name string) *OrderBook {
	return &OrderBook{
		name:  name,
		bids:  newBookSide(Buy),
		asks:  newBookSide(Sell),
		index: make(map[string]*Order),
	}
}

func (ob *OrderBook) Name() string { return ob.name }

// Subscribe registers l for every subsequent trade and rejection.
func (ob *OrderBook) Subscribe(l Listener) {
	if l != nil {
		ob.listeners = append(ob.listeners, l)
	}
}

func (ob *OrderBook) side(s Side) *bookSide {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) nextID() string {
	ob.seq++
	return fmt.Sprintf("o%d", ob.seq)
}

// SubmitLimitOrder matches a limit order against resting liquidity and rests
// any remainder. The id is returned whether or not the order filled; inspect
// the trade log or book state for the outcome.
func (ob *OrderBook) SubmitLimitOrder(side Side, price, qty decimal.Decimal) (string, error) {
	if err := validateSide(side); err != nil {
		return "", ob.rejectHard(OpSubmitLimit, "", err)
	}
	if !price.IsPositive() {
		return "", ob.rejectHard(OpSubmitLimit, "", fmt.Errorf("%w: price must be > 0, got %s", ErrInvalidPrice, price))
	}
	if !qty.IsPositive() {
		return "", ob.rejectHard(OpSubmitLimit, "", fmt.Errorf("%w: quantity must be > 0, got %s", ErrInvalidQuantity, qty))
	}

	id := ob.nextID()
	incoming := &Order{ID: id, Side: side, Price: price, Qty: qty, Seq: ob.seq}

	ob.match(incoming, &price)

	if incoming.Qty.IsPositive() {
		ob.side(side).add(incoming)
		ob.index[id] = incoming
	}
	return id, nil
}

// SubmitMarketOrder sweeps the opposing side with no price limit. It never
// rests; whatever cannot be filled is reported as RemainingQty.
func (ob *OrderBook) SubmitMarketOrder(side Side, qty decimal.Decimal) (MarketResult, error) {
	if err := validateSide(side); err != nil {
		return MarketResult{}, ob.rejectHard(OpSubmitMarket, "", err)
	}
	if !qty.IsPositive() {
		return MarketResult{}, ob.rejectHard(OpSubmitMarket, "", fmt.Errorf("%w: quantity must be > 0, got %s", ErrInvalidQuantity, qty))
	}

	id := ob.nextID()
	incoming := &Order{ID: id, Side: side, Qty: qty, Seq: ob.seq}

	ob.match(incoming, nil)

	return MarketResult{
		OrderID:      id,
		Side:         side,
		RequestedQty: qty,
		FilledQty:    qty.Sub(incoming.Qty),
		RemainingQty: incoming.Qty,
	}, nil
}

// match consumes opposing liquidity best price first, FIFO within a price.
// A nil limit means no price bound (market order). Every trade prints at the
// resting order's price.
func (ob *OrderBook) match(taker *Order, limit *decimal.Decimal) {
	opp := ob.side(taker.Side.Opposite())
	for taker.Qty.IsPositive() {
		level := opp.best()
		if level == nil || (limit != nil && !crosses(taker.Side, *limit, level.price)) {
			break
		}
		maker := level.orders[0]
		qty := decimal.Min(taker.Qty, maker.Qty)

		taker.Qty = taker.Qty.Sub(qty)
		maker.Qty = maker.Qty.Sub(qty)
		level.qty = level.qty.Sub(qty)

		ob.recordTrade(taker, maker, level.price, qty)

		if !maker.Qty.IsPositive() {
			opp.popFront(level)
			delete(ob.index, maker.ID)
		}
	}
}

// crosses reports whether a taker on side s with the given limit can trade
// against a resting level at price.
func crosses(s Side, limit, price decimal.Decimal) bool {
	if s == Buy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

func (ob *OrderBook) recordTrade(taker, maker *Order, price, qty decimal.Decimal) {
	t := Trade{
		ID:    uint64(len(ob.trades)) + 1,
		Price: price,
		Qty:   qty,
	}
	if taker.Side == Buy {
		t.Buyer, t.Seller = taker.ID, maker.ID
	} else {
		t.Buyer, t.Seller = maker.ID, taker.ID
	}
	ob.trades = append(ob.trades, t)
	ob.listeners.OnTrade(ob.name, t)
}

// CancelOrder removes a resting order. Unknown or already removed ids return
// false and leave the book unchanged.
func (ob *OrderBook) CancelOrder(id string) bool {
	o, ok := ob.index[id]
	if !ok {
		ob.rejectSoft(OpCancel, id, ReasonNotFound)
		return false
	}
	ob.side(o.Side).remove(o)
	delete(ob.index, id)
	return true
}

// ModifyOrderQuantity reduces a resting order's quantity in place, keeping
// its time priority. Increases and non-positive targets are refused (false,
// order unchanged): an increase must be a cancel/replace, and a reduction to
// zero must be an explicit cancel.
func (ob *OrderBook) ModifyOrderQuantity(id string, qty decimal.Decimal) bool {
	o, ok := ob.index[id]
	if !ok {
		ob.rejectSoft(OpModify, id, ReasonNotFound)
		return false
	}
	if !qty.IsPositive() {
		ob.rejectSoft(OpModify, id, ReasonNonPositiveQty)
		return false
	}
	if qty.GreaterThan(o.Qty) {
		ob.rejectSoft(OpModify, id, ReasonIncrease)
		return false
	}
	ob.side(o.Side).reduce(o, o.Qty.Sub(qty))
	o.Qty = qty
	return true
}

// BestBid returns a copy of the highest-priority resting bid.
func (ob *OrderBook) BestBid() (Order, bool) { return head(ob.bids) }

// BestAsk returns a copy of the highest-priority resting ask.
func (ob *OrderBook) BestAsk() (Order, bool) { return head(ob.asks) }

func head(s *bookSide) (Order, bool) {
	level := s.best()
	if level == nil {
		return Order{}, false
	}
	return *level.orders[0], true
}

// Order returns a copy of a resting order.
func (ob *OrderBook) Order(id string) (Order, bool) {
	o, ok := ob.index[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int { return len(ob.index) }

// Seq returns the last assigned sequence number.
func (ob *OrderBook) Seq() uint64 { return ob.seq }

// RestingQty returns the total residual quantity resting on one side.
func (ob *OrderBook) RestingQty(side Side) decimal.Decimal {
	if !side.Valid() {
		return decimal.Zero
	}
	return ob.side(side).total()
}

func validateSide(s Side) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSide, s)
	}
	return nil
}

func (ob *OrderBook) rejectHard(op, id string, err error) error {
	ob.listeners.OnReject(ob.name, Rejection{Op: op, OrderID: id, Reason: err.Error(), Hard: true})
	return err
}

func (ob *OrderBook) rejectSoft(op, id, reason string) {
	ob.listeners.OnReject(ob.name, Rejection{Op: op, OrderID: id, Reason: reason})
}
