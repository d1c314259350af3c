package book

import (
	"container/heap"
	"sort"

	"github.com/shopspring/decimal"
)

// priceLevel is the FIFO queue of resting orders at one price.
type priceLevel struct {
	price  decimal.Decimal
	orders []*Order
	qty    decimal.Decimal // sum of residual qty across orders
	index  int             // position in the side heap, -1 once removed
}

// MaxPriceHeap implements heap.Interface for bid levels (highest price on top)
// Use container/heap package to manipulate this heap (Init, Push, Pop, Remove)
type MaxPriceHeap []*priceLevel

func (h MaxPriceHeap) Len() int           { return len(h) }
func (h MaxPriceHeap) Less(i, j int) bool { return h[i].price.GreaterThan(h[j].price) }
func (h MaxPriceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *MaxPriceHeap) Push(x interface{}) {
	l := x.(*priceLevel)
	l.index = len(*h)
	*h = append(*h, l)
}

func (h *MaxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	l := old[n-1]
	old[n-1] = nil
	l.index = -1
	*h = old[0 : n-1]
	return l
}

// Peek returns the top element without removing it
func (h MaxPriceHeap) Peek() *priceLevel {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// MinPriceHeap implements heap.Interface for ask levels (lowest price on top)
type MinPriceHeap []*priceLevel

func (h MinPriceHeap) Len() int           { return len(h) }
func (h MinPriceHeap) Less(i, j int) bool { return h[i].price.LessThan(h[j].price) }
func (h MinPriceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *MinPriceHeap) Push(x interface{}) {
	l := x.(*priceLevel)
	l.index = len(*h)
	*h = append(*h, l)
}

func (h *MinPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	l := old[n-1]
	old[n-1] = nil
	l.index = -1
	*h = old[0 : n-1]
	return l
}

// Peek returns the top element without removing it
func (h MinPriceHeap) Peek() *priceLevel {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

type levelHeap interface {
	heap.Interface
	Peek() *priceLevel
}

// bookSide is one side of the book: a heap of price levels for O(1) best-price
// peeks plus a price -> level index for O(1) level lookup.
type bookSide struct {
	side   Side
	heap   levelHeap
	levels map[string]*priceLevel // canonical price string -> level
}

func newBookSide(side Side) *bookSide {
	var h levelHeap
	if side == Buy {
		h = &MaxPriceHeap{}
	} else {
		h = &MinPriceHeap{}
	}
	heap.Init(h)
	return &bookSide{side: side, heap: h, levels: make(map[string]*priceLevel)}
}

// priceKey is canonical across scales: "101", "101.0" and "101.00" share a level.
func priceKey(p decimal.Decimal) string { return p.String() }

func (s *bookSide) best() *priceLevel { return s.heap.Peek() }

func (s *bookSide) empty() bool { return s.heap.Len() == 0 }

func (s *bookSide) add(o *Order) {
	key := priceKey(o.Price)
	level, ok := s.levels[key]
	if !ok {
		// New price level - add to heap
		level = &priceLevel{price: o.Price, qty: decimal.Zero}
		s.levels[key] = level
		heap.Push(s.heap, level)
	}
	level.orders = append(level.orders, o)
	level.qty = level.qty.Add(o.Qty)
}

// remove unlinks o from its level, dropping the level once it is empty.
func (s *bookSide) remove(o *Order) bool {
	level, ok := s.levels[priceKey(o.Price)]
	if !ok {
		return false
	}
	for i, cur := range level.orders {
		if cur != o {
			continue
		}
		level.orders = append(level.orders[:i], level.orders[i+1:]...)
		level.qty = level.qty.Sub(o.Qty)
		if len(level.orders) == 0 {
			s.dropLevel(level)
		}
		return true
	}
	return false
}

// popFront removes the exhausted head order of level.
func (s *bookSide) popFront(level *priceLevel) {
	level.orders[0] = nil
	level.orders = level.orders[1:]
	if len(level.orders) == 0 {
		s.dropLevel(level)
	}
}

// reduce lowers the cached level total after an order in it shrank by qty.
func (s *bookSide) reduce(o *Order, qty decimal.Decimal) {
	if level, ok := s.levels[priceKey(o.Price)]; ok {
		level.qty = level.qty.Sub(qty)
	}
}

func (s *bookSide) dropLevel(level *priceLevel) {
	delete(s.levels, priceKey(level.price))
	if level.index >= 0 {
		heap.Remove(s.heap, level.index)
	}
}

// snapshot returns every level best-first.
func (s *bookSide) snapshot() []Level {
	out := make([]Level, 0, len(s.levels))
	for _, l := range s.levels {
		out = append(out, Level{Price: l.price, Qty: l.qty})
	}
	if s.side == Buy {
		// Sort high to low (best bid = highest price first)
		sort.Slice(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	} else {
		// Sort low to high (best ask = lowest price first)
		sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	}
	return out
}

func (s *bookSide) total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.levels {
		sum = sum.Add(l.qty)
	}
	return sum
}
