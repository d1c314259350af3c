package venue

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/multivenue/pkg/book"
)

var (
	ErrUnknownVenue     = errors.New("unknown venue")
	ErrDuplicateVenue   = errors.New("duplicate venue")
	ErrInvalidVenueName = errors.New("invalid venue name")
)

// Operation names carried by Rejection events raised by the registry.
const (
	OpRegister     = "register"
	OpLookup       = "venue"
	OpSmartSweep   = "smart_sweep"
	OpConsolidated = "consolidated_levels"
)

// MultiVenueBook is a named registry of independent order books with
// read-only cross-venue views on top (NBBO, consolidated depth, smart sweep).
//
// Like book.OrderBook it performs no locking of its own.
type MultiVenueBook struct {
	venues    map[string]*book.OrderBook // name -> book
	listeners book.Listeners             // attached to every registered book
}

// Option configures a MultiVenueBook.
type Option func(*MultiVenueBook)

// WithListener subscribes l to every venue registered afterwards.
func WithListener(l book.Listener) Option {
	return func(m *MultiVenueBook) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *MultiVenueBook {
	m := &MultiVenueBook{venues: make(map[string]*book.OrderBook)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a venue. A nil ob creates a fresh book named after the venue.
// Names are never reused and a book can back only one venue. The shared
// listeners see the venue name on every event, whatever the book calls itself.
func (m *MultiVenueBook) Register(name string, ob *book.OrderBook) error {
	if name == "" {
		return m.reject(name, OpRegister, fmt.Errorf("%w: name cannot be empty", ErrInvalidVenueName))
	}
	if _, exists := m.venues[name]; exists {
		return m.reject(name, OpRegister, fmt.Errorf("%w: venue %s already registered", ErrDuplicateVenue, name))
	}
	if ob == nil {
		ob = book.NewOrderBook(name)
	} else {
		for other, existing := range m.venues {
			if existing == ob {
				return m.reject(name, OpRegister,
					fmt.Errorf("%w: book already registered as venue %s", ErrDuplicateVenue, other))
			}
		}
	}
	if len(m.listeners) > 0 {
		ob.Subscribe(tagged{venue: name, next: m.listeners})
	}
	m.venues[name] = ob
	return nil
}

// Venue returns the book registered under name.
func (m *MultiVenueBook) Venue(name string) (*book.OrderBook, error) {
	ob, ok := m.venues[name]
	if !ok {
		return nil, m.reject(name, OpLookup, fmt.Errorf("%w: %s", ErrUnknownVenue, name))
	}
	return ob, nil
}

// reject reports a hard failure of a registry operation to the shared
// listeners and returns err. Cross-venue operations use an empty venue.
func (m *MultiVenueBook) reject(venue, op string, err error) error {
	m.listeners.OnReject(venue, book.Rejection{Op: op, Reason: err.Error(), Hard: true})
	return err
}

// tagged relabels book events with the venue the book is registered under.
type tagged struct {
	venue string
	next  book.Listener
}

func (t tagged) OnTrade(_ string, tr book.Trade) { t.next.OnTrade(t.venue, tr) }
func (t tagged) OnReject(_ string, r book.Rejection) { t.next.OnReject(t.venue, r) }

// Names returns the registered venue names in ascending order. Every
// cross-venue scan walks venues in this order.
func (m *MultiVenueBook) Names() []string {
	names := make([]string, 0, len(m.venues))
	for n := range m.venues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *MultiVenueBook) Count() int { return len(m.venues) }

// Quote is a (price, qty) pair for the top order of one side of a venue.
type Quote struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

type Top struct {
	Venue   string `json:"venue"`
	BestBid *Quote `json:"bestBid"`
	BestAsk *Quote `json:"bestAsk"`
}

type Liquidity struct {
	Venue       string          `json:"venue"`
	TotalBidQty decimal.Decimal `json:"totalBidQty"`
	TotalAskQty decimal.Decimal `json:"totalAskQty"`
}

func quoteOf(o book.Order, ok bool) *Quote {
	if !ok {
		return nil
	}
	return &Quote{Price: o.Price, Qty: o.Qty}
}

// VenueTop reports the top resting order on each side of one venue.
func (m *MultiVenueBook) VenueTop(name string) (Top, error) {
	ob, err := m.Venue(name)
	if err != nil {
		return Top{}, err
	}
	return Top{
		Venue:   name,
		BestBid: quoteOf(ob.BestBid()),
		BestAsk: quoteOf(ob.BestAsk()),
	}, nil
}

// VenueLiquidity reports the total resting quantity on each side of one venue.
func (m *MultiVenueBook) VenueLiquidity(name string) (Liquidity, error) {
	ob, err := m.Venue(name)
	if err != nil {
		return Liquidity{}, err
	}
	return Liquidity{
		Venue:       name,
		TotalBidQty: ob.RestingQty(book.Buy),
		TotalAskQty: ob.RestingQty(book.Sell),
	}, nil
}

// VenueSweep is a single-venue sweep simulation tagged with its venue.
type VenueSweep struct {
	Venue string `json:"venue"`
	book.SweepResult
}

// VenueSweepVWAP runs SimulateSweepVWAP on one venue.
func (m *MultiVenueBook) VenueSweepVWAP(name string, side book.Side, qty decimal.Decimal) (VenueSweep, error) {
	ob, err := m.Venue(name)
	if err != nil {
		return VenueSweep{}, err
	}
	res, err := ob.SimulateSweepVWAP(side, qty)
	if err != nil {
		return VenueSweep{}, err
	}
	return VenueSweep{Venue: name, SweepResult: res}, nil
}
