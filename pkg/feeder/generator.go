package feeder

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/multivenue/pkg/book"
	"github.com/uhyunpark/multivenue/pkg/venue"
)

// ErrNoVenues is returned when a generator is given nothing to trade.
var ErrNoVenues = errors.New("feeder: no venues")

// maxTracked bounds the per-venue list of cancel / modify candidates.
const maxTracked = 200

type ActionKind int

const (
	ActionLimit ActionKind = iota
	ActionMarket
	ActionCancel
	ActionModify
)

func (k ActionKind) String() string {
	switch k {
	case ActionLimit:
		return "limit"
	case ActionMarket:
		return "market"
	case ActionCancel:
		return "cancel"
	case ActionModify:
		return "modify"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is one synthetic instruction against a venue.
type Action struct {
	Kind    ActionKind
	Venue   string
	Side    book.Side
	Price   decimal.Decimal // limit only
	Qty     decimal.Decimal // order size, or target size for modify
	OrderID string          // cancel / modify
}

// Generator creates random order flow for load testing
type Generator struct {
	venues []string
	rng    *rand.Rand
	base   int64               // mid price in cents
	live   map[string][]string // venue -> ids that rested, most recent last

	Stats Stats
}

// Stats counts what Apply actually did.
type Stats struct {
	Limits   int
	Markets  int
	Cancels  int
	Modifies int
	Refused  int // cancel / modify that returned false
	Trades   int
}

// NewGenerator creates a generator for the given venues. Equal seeds give
// equal flow.
func NewGenerator(venues []string, seed int64) (*Generator, error) {
	if len(venues) == 0 {
		return nil, ErrNoVenues
	}
	return &Generator{
		venues: append([]string(nil), venues...),
		rng:    rand.New(rand.NewSource(seed)),
		base:   10000,
		live:   make(map[string][]string),
	}, nil
}

func (g *Generator) side() book.Side {
	if g.rng.Intn(2) == 1 {
		return book.Sell
	}
	return book.Buy
}

// Next draws a random action: 65% limit, 10% market, 15% cancel, 10% modify.
// Cancels and modifies fall back to limits while a venue has nothing resting.
func (g *Generator) Next() Action {
	v := g.venues[g.rng.Intn(len(g.venues))]
	qty := decimal.NewFromInt(int64(g.rng.Intn(10) + 1))

	r := g.rng.Intn(100)
	ids := g.live[v]
	switch {
	case r >= 90 && len(ids) > 0:
		return Action{Kind: ActionModify, Venue: v, OrderID: ids[g.rng.Intn(len(ids))], Qty: qty}
	case r >= 75 && len(ids) > 0:
		i := g.rng.Intn(len(ids))
		id := ids[i]
		g.live[v] = append(ids[:i:i], ids[i+1:]...)
		return Action{Kind: ActionCancel, Venue: v, OrderID: id}
	case r >= 65 && r < 75:
		return Action{Kind: ActionMarket, Venue: v, Side: g.side(), Qty: qty}
	}

	// ±2.50 around the mid, in cents
	cents := g.base + int64(g.rng.Intn(501)-250)
	return Action{Kind: ActionLimit, Venue: v, Side: g.side(), Price: decimal.New(cents, -2), Qty: qty}
}

// Apply executes a onto mv. Only hard validation failures are returned;
// soft refusals are counted in Stats.
func (g *Generator) Apply(mv *venue.MultiVenueBook, a Action) error {
	ob, err := mv.Venue(a.Venue)
	if err != nil {
		return err
	}
	before := ob.TradeCount()

	switch a.Kind {
	case ActionLimit:
		id, err := ob.SubmitLimitOrder(a.Side, a.Price, a.Qty)
		if err != nil {
			return err
		}
		g.Stats.Limits++
		if _, resting := ob.Order(id); resting {
			ids := append(g.live[a.Venue], id)
			if len(ids) > maxTracked {
				ids = ids[len(ids)-maxTracked:]
			}
			g.live[a.Venue] = ids
		}
	case ActionMarket:
		if _, err := ob.SubmitMarketOrder(a.Side, a.Qty); err != nil {
			return err
		}
		g.Stats.Markets++
	case ActionCancel:
		g.Stats.Cancels++
		if !ob.CancelOrder(a.OrderID) {
			g.Stats.Refused++
		}
	case ActionModify:
		g.Stats.Modifies++
		if !ob.ModifyOrderQuantity(a.OrderID, a.Qty) {
			g.Stats.Refused++
		}
	default:
		return fmt.Errorf("unknown action %v", a.Kind)
	}

	g.Stats.Trades += ob.TradeCount() - before
	return nil
}

// GenerateBatch draws and applies count actions.
func (g *Generator) GenerateBatch(mv *venue.MultiVenueBook, count int) error {
	for i := 0; i < count; i++ {
		if err := g.Apply(mv, g.Next()); err != nil {
			return err
		}
	}
	return nil
}
