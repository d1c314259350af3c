package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/multivenue/params"
	"github.com/uhyunpark/multivenue/pkg/book"
	"github.com/uhyunpark/multivenue/pkg/storage"
	"github.com/uhyunpark/multivenue/pkg/venue"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	mv := venue.New(venue.WithListener(hub))
	require.NoError(t, mv.Register("A", nil))
	require.NoError(t, mv.Register("B", nil))

	srv := NewServer(mv, hub, params.Default(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return srv, ts
}

func call(t *testing.T, ts *httptest.Server, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func submit(t *testing.T, ts *httptest.Server, venueName, side, price, qty string) OrderResponse {
	t.Helper()
	status, body := call(t, ts, http.MethodPost, "/api/v1/venues/"+venueName+"/orders",
		map[string]string{"side": side, "type": "limit", "price": price, "qty": qty})
	require.Equal(t, http.StatusOK, status, string(body))
	return decode[OrderResponse](t, body)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	status, body := call(t, ts, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestVenues_ListAndRegister(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := call(t, ts, http.MethodPost, "/api/v1/venues", RegisterVenueRequest{Name: "C"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = call(t, ts, http.MethodPost, "/api/v1/venues", RegisterVenueRequest{Name: "A"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, ts, http.MethodPost, "/api/v1/venues", RegisterVenueRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues", nil)
	require.Equal(t, http.StatusOK, status)
	infos := decode[[]VenueInfo](t, body)
	require.Len(t, infos, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{infos[0].Name, infos[1].Name, infos[2].Name})
	assert.False(t, infos[0].LastPrice.Valid)
}

func TestOrders_LimitLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	resp := submit(t, ts, "A", "buy", "99", "5")
	require.True(t, resp.OK)
	assert.Equal(t, "o1", resp.OrderID)

	// Increasing is refused softly.
	status, body := call(t, ts, http.MethodPatch, "/api/v1/venues/A/orders/o1", map[string]string{"qty": "6"})
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[OrderResponse](t, body).OK)

	status, body = call(t, ts, http.MethodPatch, "/api/v1/venues/A/orders/o1", map[string]string{"qty": "2"})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[OrderResponse](t, body).OK)

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/A/orders/o1", nil)
	require.Equal(t, http.StatusOK, status)
	o := decode[book.Order](t, body)
	assert.True(t, o.Qty.Equal(dec("2")))
	assert.Equal(t, book.Buy, o.Side)

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/A/liquidity", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[venue.Liquidity](t, body).TotalBidQty.Equal(dec("2")))

	status, body = call(t, ts, http.MethodDelete, "/api/v1/venues/A/orders/o1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[OrderResponse](t, body).OK)

	status, body = call(t, ts, http.MethodDelete, "/api/v1/venues/A/orders/o1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[OrderResponse](t, body).OK)

	status, _ = call(t, ts, http.MethodGet, "/api/v1/venues/A/orders/o1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOrders_MarketAndTrades(t *testing.T) {
	_, ts := newTestServer(t)
	submit(t, ts, "A", "sell", "101", "5")
	submit(t, ts, "A", "sell", "102", "5")

	status, body := call(t, ts, http.MethodPost, "/api/v1/venues/A/orders",
		map[string]string{"side": "buy", "type": "market", "qty": "7"})
	require.Equal(t, http.StatusOK, status, string(body))
	resp := decode[OrderResponse](t, body)
	require.NotNil(t, resp.Market)
	assert.True(t, resp.Market.FilledQty.Equal(dec("7")))
	assert.True(t, resp.Market.RemainingQty.IsZero())

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/A/trades?limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	trades := decode[[]book.Trade](t, body)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("101")))
	assert.True(t, trades[1].Price.Equal(dec("102")))

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/A/vwma?n=2", nil)
	require.Equal(t, http.StatusOK, status)
	vwma := decode[VWMAResponse](t, body)
	require.True(t, vwma.VWMA.Valid)
	assert.True(t, vwma.VWMA.Decimal.Mul(dec("7")).Round(8).Equal(dec("709")), vwma.VWMA.Decimal.String())

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/B/vwma", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[VWMAResponse](t, body).VWMA.Valid)

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/A/orderbook?depth=5", nil)
	require.Equal(t, http.StatusOK, status)
	snap := decode[OrderbookSnapshot](t, body)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Qty.Equal(dec("3")))
	assert.Empty(t, snap.Bids)
}

func TestCrossVenue_NBBOAndSmartSweep(t *testing.T) {
	_, ts := newTestServer(t)
	submit(t, ts, "A", "buy", "99", "2")
	submit(t, ts, "B", "buy", "99.5", "1")
	submit(t, ts, "A", "sell", "101", "3")
	submit(t, ts, "B", "sell", "100", "3")

	status, body := call(t, ts, http.MethodGet, "/api/v1/nbbo", nil)
	require.Equal(t, http.StatusOK, status)
	nbbo := decode[venue.NBBO](t, body)
	require.NotNil(t, nbbo.BestBid)
	require.NotNil(t, nbbo.BestAsk)
	assert.Equal(t, "B", nbbo.BestBid.Venue)
	assert.True(t, nbbo.BestBid.Price.Equal(dec("99.5")))
	assert.Equal(t, "B", nbbo.BestAsk.Venue)

	status, body = call(t, ts, http.MethodGet, "/api/v1/sweep?side=buy&qty=6", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	sweep := decode[venue.RoutedSweep](t, body)
	assert.True(t, sweep.FilledQty.Equal(dec("6")))
	require.True(t, sweep.VWAP.Valid)
	assert.True(t, sweep.VWAP.Decimal.Equal(dec("100.5")))
	assert.True(t, sweep.PerVenue["A"].Notional.Equal(dec("303")))
	assert.True(t, sweep.PerVenue["B"].Notional.Equal(dec("300")))
	require.Len(t, sweep.Breakdown, 2)
	assert.Equal(t, "B", sweep.Breakdown[0].Venue)

	status, body = call(t, ts, http.MethodGet, "/api/v1/consolidated?side=sell&depth=1", nil)
	require.Equal(t, http.StatusOK, status)
	levels := decode[[]book.Level](t, body)
	require.Len(t, levels, 1)
	assert.True(t, levels[0].Price.Equal(dec("100")))

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/A/sweep?side=buy&qty=4", nil)
	require.Equal(t, http.StatusOK, status)
	vs := decode[venue.VenueSweep](t, body)
	assert.Equal(t, "A", vs.Venue)
	assert.True(t, vs.RemainingQty.Equal(dec("1")))
}

func TestErrors_StatusMapping(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown venue", http.MethodGet, "/api/v1/venues/Z/top", nil, http.StatusNotFound},
		{"unknown venue order", http.MethodPost, "/api/v1/venues/Z/orders", map[string]string{"side": "buy", "price": "1", "qty": "1"}, http.StatusNotFound},
		{"bad side", http.MethodPost, "/api/v1/venues/A/orders", map[string]string{"side": "hold", "price": "1", "qty": "1"}, http.StatusBadRequest},
		{"zero price", http.MethodPost, "/api/v1/venues/A/orders", map[string]string{"side": "buy", "price": "0", "qty": "1"}, http.StatusBadRequest},
		{"negative qty", http.MethodPost, "/api/v1/venues/A/orders", map[string]string{"side": "buy", "price": "1", "qty": "-1"}, http.StatusBadRequest},
		{"missing side", http.MethodPost, "/api/v1/venues/A/orders", map[string]string{"price": "1", "qty": "1"}, http.StatusBadRequest},
		{"missing venue name", http.MethodPost, "/api/v1/venues", map[string]string{}, http.StatusBadRequest},
		{"bad type", http.MethodPost, "/api/v1/venues/A/orders", map[string]string{"side": "buy", "type": "stop", "price": "1", "qty": "1"}, http.StatusBadRequest},
		{"zero depth", http.MethodGet, "/api/v1/venues/A/orderbook?depth=0", nil, http.StatusBadRequest},
		{"garbage depth", http.MethodGet, "/api/v1/consolidated?side=buy&depth=x", nil, http.StatusBadRequest},
		{"sweep bad qty", http.MethodGet, "/api/v1/sweep?side=buy&qty=abc", nil, http.StatusBadRequest},
		{"sweep zero qty", http.MethodGet, "/api/v1/sweep?side=sell&qty=0", nil, http.StatusBadRequest},
		{"sweep missing side", http.MethodGet, "/api/v1/venues/A/sweep?qty=1", nil, http.StatusBadRequest},
		{"tape disabled", http.MethodGet, "/api/v1/venues/A/tape", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := call(t, ts, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, status, string(body))
			assert.NotEmpty(t, decode[ErrorResponse](t, body).Error)
		})
	}
}

type stubTape struct {
	records []storage.TapeRecord
	err     error
}

func (s stubTape) RecentTrades(venue string, limit int) ([]storage.TapeRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []storage.TapeRecord
	for _, r := range s.records {
		if r.Venue == venue && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestTapeEndpoint(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetTape(stubTape{records: []storage.TapeRecord{
		{Venue: "A", Session: 1, Trade: book.Trade{ID: 2, Price: dec("10"), Qty: dec("1")}},
		{Venue: "A", Session: 1, Trade: book.Trade{ID: 1, Price: dec("9"), Qty: dec("1")}},
	}})

	status, body := call(t, ts, http.MethodGet, "/api/v1/venues/A/tape?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	records := decode[[]storage.TapeRecord](t, body)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(2), records[0].Trade.ID)

	status, body = call(t, ts, http.MethodGet, "/api/v1/venues/B/tape", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	status, _ = call(t, ts, http.MethodGet, "/api/v1/venues/Z/tape", nil)
	assert.Equal(t, http.StatusNotFound, status)

	srv.SetTape(stubTape{err: errors.New("disk gone")})
	status, _ = call(t, ts, http.MethodGet, "/api/v1/venues/A/tape", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestWebSocket_TradeAndNBBOPush(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"trades:A", "nbbo"}}))

	read := func() map[string]json.RawMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	typeOf := func(msg map[string]json.RawMessage) string {
		var s string
		_ = json.Unmarshal(msg["type"], &s)
		return s
	}

	require.Equal(t, wsTypeSubscribed, typeOf(read()))

	submit(t, ts, "B", "sell", "100", "1") // other venue: nbbo only
	msg := read()
	require.Equal(t, wsTypeNBBO, typeOf(msg))

	submit(t, ts, "A", "buy", "100", "1") // trades against nothing on A, rests
	require.Equal(t, wsTypeNBBO, typeOf(read()))

	submit(t, ts, "A", "sell", "100", "1") // crosses A's bid
	msg = read()
	require.Equal(t, wsTypeTrade, typeOf(msg))
	var tr book.Trade
	require.NoError(t, json.Unmarshal(msg["data"], &tr))
	assert.Equal(t, "o1", tr.Buyer)
	assert.Equal(t, "o2", tr.Seller)
	assert.True(t, tr.Price.Equal(dec("100")))
}

func TestDo_SharesVenuesWithHTTP(t *testing.T) {
	srv, ts := newTestServer(t)

	srv.Do(func(mv *venue.MultiVenueBook) {
		ob, err := mv.Venue("B")
		require.NoError(t, err)
		_, err = ob.SubmitLimitOrder(book.Sell, dec("42"), dec("3"))
		require.NoError(t, err)
	})

	status, body := call(t, ts, http.MethodGet, "/api/v1/venues/B/top", nil)
	require.Equal(t, http.StatusOK, status)
	top := decode[venue.Top](t, body)
	require.NotNil(t, top.BestAsk)
	assert.Nil(t, top.BestBid)
	assert.True(t, top.BestAsk.Price.Equal(dec("42")))
	assert.JSONEq(t, `{"bestBid":null,"bestAsk":{"venue":"B","price":"42","qty":"3"}}`, string(srv.lastNBBO))
}

func TestOrders_SubmitLogOmitsMarketPrice(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	hub := NewHub(nil)
	mv := venue.New(venue.WithListener(hub))
	require.NoError(t, mv.Register("A", nil))
	srv := NewServer(mv, hub, params.Default(), zap.New(core).Sugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	submit(t, ts, "A", "sell", "101", "5")
	status, body := call(t, ts, http.MethodPost, "/api/v1/venues/A/orders",
		map[string]string{"side": "buy", "type": "market", "qty": "2"})
	require.Equal(t, http.StatusOK, status, string(body))

	entries := logs.FilterMessage("order_submitted").All()
	require.Len(t, entries, 2)
	limitFields := entries[0].ContextMap()
	assert.Equal(t, "limit", limitFields["type"])
	assert.Contains(t, limitFields, "price")
	marketFields := entries[1].ContextMap()
	assert.Equal(t, "market", marketFields["type"])
	assert.NotContains(t, marketFields, "price")
}
