package venue

import "github.com/shopspring/decimal"

// VenueQuote is a top-of-book quote attributed to a venue.
type VenueQuote struct {
	Venue string          `json:"venue"`
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// NBBO is the best bid and best offer across all venues. Either side is nil
// when no venue has resting liquidity on it.
type NBBO struct {
	BestBid *VenueQuote `json:"bestBid"`
	BestAsk *VenueQuote `json:"bestAsk"`
}

// NBBO scans every venue's top of book. Venues are visited in ascending name
// order and only a strictly better price replaces the current best, so on a
// price tie the lexicographically smallest venue name wins.
func (m *MultiVenueBook) NBBO() NBBO {
	var out NBBO
	for _, name := range m.Names() {
		ob := m.venues[name]
		if bb, ok := ob.BestBid(); ok {
			if out.BestBid == nil || bb.Price.GreaterThan(out.BestBid.Price) {
				out.BestBid = &VenueQuote{Venue: name, Price: bb.Price, Qty: bb.Qty}
			}
		}
		if ba, ok := ob.BestAsk(); ok {
			if out.BestAsk == nil || ba.Price.LessThan(out.BestAsk.Price) {
				out.BestAsk = &VenueQuote{Venue: name, Price: ba.Price, Qty: ba.Qty}
			}
		}
	}
	return out
}

// Crossed reports whether the consolidated market is locked or crossed,
// which only happens when the best bid and best ask sit on different venues.
func (n NBBO) Crossed() bool {
	return n.BestBid != nil && n.BestAsk != nil && !n.BestBid.Price.LessThan(n.BestAsk.Price)
}

