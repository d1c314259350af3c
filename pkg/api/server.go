package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/multivenue/params"
	"github.com/uhyunpark/multivenue/pkg/book"
	"github.com/uhyunpark/multivenue/pkg/storage"
	"github.com/uhyunpark/multivenue/pkg/venue"
)

const defaultTradeLimit = 50

var validate = validator.New()

// TapeReader serves archived trades. Satisfied by *storage.TradeTape.
type TapeReader interface {
	RecentTrades(venue string, limit int) ([]storage.TapeRecord, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	// mu serialises every call into the venues; the books do no locking.
	mu       sync.Mutex
	venues   *venue.MultiVenueBook
	lastNBBO []byte

	tape   TapeReader
	router *mux.Router
	hub    *Hub // WebSocket hub
	log    *zap.SugaredLogger

	depth   int
	origins []string
}

// NewServer creates a new API server. hub should already be attached to
// venues as a listener so trade and reject events reach WebSocket clients.
func NewServer(venues *venue.MultiVenueBook, hub *Hub, cfg params.Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	depth := cfg.Venues.DefaultDepth
	if depth <= 0 {
		depth = params.Default().Venues.DefaultDepth
	}

	s := &Server{
		venues:  venues,
		router:  mux.NewRouter(),
		hub:     hub,
		log:     log,
		depth:   depth,
		origins: cfg.API.CORSOrigins,
	}

	s.setupRoutes()
	return s
}

// Do runs fn under the server lock and pushes the NBBO afterwards. It lets
// in-process producers such as the feeder share the venues with HTTP clients.
func (s *Server) Do(fn func(*venue.MultiVenueBook)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.venues)
	s.publishNBBO()
}

// SetTape enables GET /api/v1/venues/{venue}/tape.
func (s *Server) SetTape(t TapeReader) { s.tape = t }

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Venue endpoints
	api.HandleFunc("/venues", s.handleGetVenues).Methods("GET")
	api.HandleFunc("/venues", s.handleRegisterVenue).Methods("POST")
	api.HandleFunc("/venues/{venue}", s.handleGetVenue).Methods("GET")
	api.HandleFunc("/venues/{venue}/top", s.handleGetTop).Methods("GET")
	api.HandleFunc("/venues/{venue}/liquidity", s.handleGetLiquidity).Methods("GET")
	api.HandleFunc("/venues/{venue}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/venues/{venue}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/venues/{venue}/tape", s.handleGetTape).Methods("GET")
	api.HandleFunc("/venues/{venue}/vwma", s.handleGetVWMA).Methods("GET")
	api.HandleFunc("/venues/{venue}/sweep", s.handleGetVenueSweep).Methods("GET")

	// Order endpoints
	api.HandleFunc("/venues/{venue}/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/venues/{venue}/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/venues/{venue}/orders/{id}", s.handleModifyOrder).Methods("PATCH")
	api.HandleFunc("/venues/{venue}/orders/{id}", s.handleCancelOrder).Methods("DELETE")

	// Cross-venue endpoints
	api.HandleFunc("/nbbo", s.handleGetNBBO).Methods("GET")
	api.HandleFunc("/consolidated", s.handleGetConsolidated).Methods("GET")
	api.HandleFunc("/sweep", s.handleGetSmartSweep).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// Venue Handlers
// ==============================

func (s *Server) venueInfo(name string, ob *book.OrderBook) VenueInfo {
	info := VenueInfo{
		Name:   name,
		Orders: ob.Len(),
		Seq:    ob.Seq(),
		Trades: ob.TradeCount(),
	}
	if p, ok := ob.LastPrice(); ok {
		info.LastPrice = decimal.NewNullDecimal(p)
	}
	return info
}

func (s *Server) handleGetVenues(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.venues.Names()
	response := make([]VenueInfo, 0, len(names))
	for _, name := range names {
		ob, _ := s.venues.Venue(name)
		response = append(response, s.venueInfo(name, ob))
	}
	respondJSON(w, response)
}

func (s *Server) handleRegisterVenue(w http.ResponseWriter, r *http.Request) {
	var req RegisterVenueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", formatValidationError(err))
		return
	}
	name := strings.TrimSpace(req.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.venues.Register(name, nil); err != nil {
		s.respondErr(w, err)
		return
	}
	ob, _ := s.venues.Venue(name)
	s.log.Infow("venue_registered", "venue", name)
	respondStatus(w, http.StatusCreated, s.venueInfo(name, ob))
}

func (s *Server) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["venue"]

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, s.venueInfo(name, ob))
}

func (s *Server) handleGetTop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	top, err := s.venues.VenueTop(mux.Vars(r)["venue"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, top)
}

func (s *Server) handleGetLiquidity(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	liq, err := s.venues.VenueLiquidity(mux.Vars(r)["venue"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, liq)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["venue"]
	depth, err := intParam(r, "depth", s.depth)
	if err != nil {
		s.respondErr(w, errors.Join(book.ErrInvalidDepth, err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	bids, err := ob.Levels(book.Buy, depth)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	asks, _ := ob.Levels(book.Sell, depth)

	respondJSON(w, OrderbookSnapshot{
		Venue:     name,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultTradeLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(mux.Vars(r)["venue"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	trades := ob.RecentTrades(limit)
	if trades == nil {
		trades = []book.Trade{}
	}
	respondJSON(w, trades)
}

func (s *Server) handleGetTape(w http.ResponseWriter, r *http.Request) {
	if s.tape == nil {
		respondError(w, http.StatusNotFound, "trade tape disabled", "set TAPE_PATH to enable it")
		return
	}
	limit, err := intParam(r, "limit", defaultTradeLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	name := mux.Vars(r)["venue"]

	s.mu.Lock()
	_, err = s.venues.Venue(name)
	s.mu.Unlock()
	if err != nil {
		s.respondErr(w, err)
		return
	}

	records, err := s.tape.RecentTrades(name, limit)
	if err != nil {
		s.log.Errorw("tape_read_failed", "venue", name, "err", err)
		respondError(w, http.StatusInternalServerError, "tape read failed", err.Error())
		return
	}
	if records == nil {
		records = []storage.TapeRecord{}
	}
	respondJSON(w, records)
}

func (s *Server) handleGetVWMA(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["venue"]
	n, err := intParam(r, "n", defaultTradeLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid n", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	response := VWMAResponse{Venue: name, N: n}
	if v, ok := ob.VWMALastNTrades(n); ok {
		response.VWMA = decimal.NewNullDecimal(v)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetVenueSweep(w http.ResponseWriter, r *http.Request) {
	side, qty, err := sweepParams(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.venues.VenueSweepVWAP(mux.Vars(r)["venue"], side, qty)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["venue"]

	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", formatValidationError(err))
		return
	}
	side, err := book.ParseSide(req.Side)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	var response OrderResponse
	switch req.Type {
	case "", "limit":
		id, err := ob.SubmitLimitOrder(side, req.Price, req.Qty)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		response = OrderResponse{OK: true, OrderID: id}
	case "market":
		res, err := ob.SubmitMarketOrder(side, req.Qty)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		response = OrderResponse{OK: true, OrderID: res.OrderID, Market: &res}
	default:
		respondError(w, http.StatusBadRequest, "invalid order type", req.Type)
		return
	}

	fields := []interface{}{"venue", name, "order_id", response.OrderID, "type", req.Type, "side", side, "qty", req.Qty}
	if response.Market == nil {
		fields = append(fields, "price", req.Price)
	}
	s.log.Infow("order_submitted", fields...)
	s.publishNBBO()
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(vars["venue"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	o, ok := ob.Order(vars["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", vars["id"])
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req ModifyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(vars["venue"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	ok := ob.ModifyOrderQuantity(vars["id"], req.Qty)
	s.log.Infow("order_modified", "venue", vars["venue"], "order_id", vars["id"], "qty", req.Qty, "ok", ok)
	if ok {
		s.publishNBBO()
	}
	respondJSON(w, OrderResponse{OK: ok, OrderID: vars["id"]})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	ob, err := s.venues.Venue(vars["venue"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	ok := ob.CancelOrder(vars["id"])
	s.log.Infow("order_cancelled", "venue", vars["venue"], "order_id", vars["id"], "ok", ok)
	if ok {
		s.publishNBBO()
	}
	respondJSON(w, OrderResponse{OK: ok, OrderID: vars["id"]})
}

// ==============================
// Cross-venue Handlers
// ==============================

func (s *Server) handleGetNBBO(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, s.venues.NBBO())
}

func (s *Server) handleGetConsolidated(w http.ResponseWriter, r *http.Request) {
	side, err := book.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	depth, err := intParam(r, "depth", s.depth)
	if err != nil {
		s.respondErr(w, errors.Join(book.ErrInvalidDepth, err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	levels, err := s.venues.ConsolidatedLevels(side, depth)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, levels)
}

func (s *Server) handleGetSmartSweep(w http.ResponseWriter, r *http.Request) {
	side, qty, err := sweepParams(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.venues.SmartSweepVWAP(side, qty)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// publishNBBO pushes the NBBO to the "nbbo" channel when it changed since the
// last push. Callers hold s.mu.
func (s *Server) publishNBBO() {
	nbbo := s.venues.NBBO()
	encoded, err := json.Marshal(nbbo)
	if err != nil || bytes.Equal(encoded, s.lastNBBO) {
		return
	}
	s.lastNBBO = encoded
	s.hub.BroadcastToChannel(nbboChannel, wsTypeNBBO, nbbo)
}

// ==============================
// Helper Functions
// ==============================

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func sweepParams(r *http.Request) (book.Side, decimal.Decimal, error) {
	q := r.URL.Query()
	side, err := book.ParseSide(q.Get("side"))
	if err != nil {
		return 0, decimal.Zero, err
	}
	qty, err := decimal.NewFromString(q.Get("qty"))
	if err != nil {
		return 0, decimal.Zero, errors.Join(book.ErrInvalidQuantity, err)
	}
	return side, qty, nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		parts = append(parts, e.Field()+" failed on tag '"+e.Tag()+"'")
	}
	return strings.Join(parts, "; ")
}

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, venue.ErrUnknownVenue):
		return http.StatusNotFound
	case errors.Is(err, venue.ErrDuplicateVenue):
		return http.StatusConflict
	case errors.Is(err, venue.ErrInvalidVenueName),
		errors.Is(err, book.ErrInvalidSide),
		errors.Is(err, book.ErrInvalidPrice),
		errors.Is(err, book.ErrInvalidQuantity),
		errors.Is(err, book.ErrInvalidDepth):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Errorw("request_failed", "err", err)
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
