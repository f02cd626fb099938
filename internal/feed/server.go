package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"stock_auction/internal/domain"
	"stock_auction/internal/infra"
	"stock_auction/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Config configures the observer feed.
type Config struct {
	WriteTimeout time.Duration
	OutboxSize   int
}

// StockView is the public part of a stock. Security codes never leave the
// server.
type StockView struct {
	Symbol        string              `json:"symbol"`
	BasePrice     decimal.Decimal     `json:"base_price"`
	CurrentBid    decimal.Decimal     `json:"current_bid"`
	TopBidder     string              `json:"top_bidder,omitempty"`
	State         domain.AuctionState `json:"state"`
	CloseDeadline time.Time           `json:"close_deadline"`
	Bids          []domain.BidRecord  `json:"bids,omitempty"`
}

func newStockView(s domain.Stock, withBids bool) StockView {
	v := StockView{
		Symbol:        s.Symbol,
		BasePrice:     s.BasePrice,
		CurrentBid:    s.CurrentBid,
		TopBidder:     s.TopBidder,
		State:         s.State,
		CloseDeadline: s.CloseDeadline,
	}
	if withBids {
		v.Bids = s.BidLog
	}
	return v
}

// Server is the read-only HTTP/WebSocket surface over the auction.
// WebSocket peers join the broadcast registry like TCP sessions do.
type Server struct {
	cfg      Config
	stocks   domain.StockReader
	registry *session.Registry
	metrics  *infra.Metrics
	upgrader websocket.Upgrader

	// sessions owned by this server, closed on Shutdown
	own *session.Registry
	wg  sync.WaitGroup

	httpSrv *http.Server
}

// NewServer creates a feed over stocks publishing to registry.
func NewServer(cfg Config, stocks domain.StockReader, registry *session.Registry) *Server {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 64
	}
	s := &Server{
		cfg:      cfg,
		stocks:   stocks,
		registry: registry,
		metrics:  infra.GlobalMetrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		own: session.NewRegistry(),
	}
	s.httpSrv = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the feed router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}))

	r.Get("/stocks", s.handleStocks)
	r.Get("/stocks/{symbol}", s.handleStock)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/feed", s.handleFeed)
	return r
}

// Serve accepts HTTP connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Feed listening", slog.String("addr", ln.Addr().String()))
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return domain.NewFatalNetworkError("feed serve", err)
	}
	return nil
}

// Shutdown stops accepting requests and closes every WebSocket peer.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.own.CloseAll()
	s.wg.Wait()
	return err
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	stocks := s.stocks.Snapshot()
	views := make([]StockView, 0, len(stocks))
	for _, st := range stocks {
		views = append(views, newStockView(st, false))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	st, ok := s.stocks.Get(symbol)
	if !ok {
		http.Error(w, symbol+" not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newStockView(st, true))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	sess := session.New(newWSTransport(conn, s.cfg.WriteTimeout), s.cfg.OutboxSize)
	s.own.Register(sess)
	s.registry.Register(sess)
	s.metrics.SessionOpened()
	slog.Info("Feed peer connected", slog.Uint64("session", sess.ID()), slog.String("peer", sess.Peer()))

	defer func() {
		s.registry.Unregister(sess)
		s.own.Unregister(sess)
		sess.Close()
		s.metrics.SessionClosed()
		slog.Info("Feed peer disconnected", slog.Uint64("session", sess.ID()), slog.Any("reason", sess.Err()))
	}()

	go sess.WriteLoop()

	// Read-only: inbound messages are discarded. The read loop only serves
	// to notice the peer going away and to answer control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Feed response encode failed", slog.Any("error", err))
	}
}
