package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/multivenue/pkg/book"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// VenueInfo summarises one registered venue
type VenueInfo struct {
	Name      string              `json:"name"`
	Orders    int                 `json:"orders"`    // Resting orders
	Seq       uint64              `json:"seq"`       // Last sequence number handed out
	Trades    int                 `json:"trades"`    // Trades executed so far
	LastPrice decimal.NullDecimal `json:"lastPrice"` // null before the first trade
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Venue     string       `json:"venue"`
	Bids      []book.Level `json:"bids"` // Sorted high to low
	Asks      []book.Level `json:"asks"` // Sorted low to high
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// VWMAResponse carries the volume-weighted average of the last N trades
type VWMAResponse struct {
	Venue string              `json:"venue"`
	N     int                 `json:"n"`
	VWMA  decimal.NullDecimal `json:"vwma"`
}

// OrderResponse is returned by every order mutation. OK mirrors the
// boolean outcome of cancel and modify.
type OrderResponse struct {
	OK      bool               `json:"ok"`
	OrderID string             `json:"orderId,omitempty"`
	Market  *book.MarketResult `json:"market,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// RegisterVenueRequest is the payload for POST /api/v1/venues
type RegisterVenueRequest struct {
	Name string `json:"name" validate:"required"`
}

// SubmitOrderRequest is the payload for POST /api/v1/venues/{venue}/orders
type SubmitOrderRequest struct {
	Side  string          `json:"side" validate:"required"`                     // "buy" or "sell", any case
	Type  string          `json:"type" validate:"omitempty,oneof=limit market"` // defaults to "limit"
	Price decimal.Decimal `json:"price"`                                        // ignored for market orders
	Qty   decimal.Decimal `json:"qty"`
}

// ModifyOrderRequest is the payload for PATCH /api/v1/venues/{venue}/orders/{id}
type ModifyOrderRequest struct {
	Qty decimal.Decimal `json:"qty"`
}

// ==============================
// WebSocket Message Types
// ==============================

const (
	wsTypeTrade      = "trade"
	wsTypeReject     = "reject"
	wsTypeNBBO       = "nbbo"
	wsTypeSubscribed = "subscribed"
)

// WSMessage is the envelope for every server-to-client WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`    // "trade", "reject", "nbbo", "subscribed"
	Channel string      `json:"channel"` // e.g. "trades:A", "nbbo"
	Data    interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades:A", "rejects:B", "nbbo"]
}

func tradesChannel(venue string) string  { return "trades:" + venue }
func rejectsChannel(venue string) string { return "rejects:" + venue }

const nbboChannel = "nbbo"
