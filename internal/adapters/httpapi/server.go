// Package httpapi serves the read-only JSON projections consumed by the
// dashboard and streams pipeline events over a websocket. It holds no
// business logic.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	json "github.com/bytedance/sonic"
	"github.com/samber/lo"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	defaultDays  = 30
)

// Portfolio is the read side of the ledger.
type Portfolio interface {
	Snapshot() domain.Portfolio
}

// Store is the history the projections read from.
type Store interface {
	ListTrades(ctx context.Context, limit int) ([]domain.Trade, error)
	TradeStats(ctx context.Context) (domain.TradeStats, error)
	ports.SignalStore
	ports.SummaryStore
}

// Market returns the latest collected market data of a token.
type Market interface {
	MarketData(ctx context.Context, token string) (domain.MarketData, bool, error)
}

// Deps are the data sources of the server. Market and Events are optional.
type Deps struct {
	Portfolio Portfolio
	Store     Store
	Market    Market
	Events    *Broadcaster
	Risk      domain.RiskConfig
}

// Server es el servidor HTTP de proyecciones.
type Server struct {
	deps    Deps
	mux     *http.ServeMux
	server  *http.Server
	started time.Time
}

// New crea el servidor con todas las rutas registradas.
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux(), started: time.Now()}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	s.mux.HandleFunc("GET /api/trades", s.handleTrades)
	s.mux.HandleFunc("GET /api/signals", s.handleSignals)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/daily-pnl", s.handleDailyPnL)
	s.mux.HandleFunc("GET /api/market/{token}", s.handleMarket)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.deps.Events != nil {
		s.mux.HandleFunc("GET /ws", s.deps.Events.Handler())
	}
}

// Handler devuelve el router, útil para tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run escucha hasta que ctx se cancele y luego apaga el servidor ordenadamente.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi.Run: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.deps.Events != nil {
		s.deps.Events.Close()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi.Run: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPortfolio(s.deps.Portfolio.Snapshot(), s.deps.Risk))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	trades, err := s.deps.Store.ListTrades(r.Context(), limit)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(trades, func(t domain.Trade, _ int) tradeDTO { return toTrade(t) }))
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token")))
	signals, err := s.deps.Store.ListSignals(r.Context(), token, limit)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(signals, func(sig domain.Signal, _ int) signalDTO { return toSignal(sig) }))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.TradeStats(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStats(stats))
}

func (s *Server) handleDailyPnL(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", defaultDays)
	if !ok {
		return
	}
	summaries, err := s.deps.Store.DailySummaries(r.Context(), days)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(summaries, func(d domain.DailySummary, _ int) summaryDTO { return toSummary(d) }))
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	token := strings.ToUpper(r.PathValue("token"))
	if s.deps.Market == nil {
		writeError(w, http.StatusServiceUnavailable, "market cache disabled")
		return
	}
	md, found, err := s.deps.Market.MarketData(r.Context(), token)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no market data for "+token)
		return
	}
	writeJSON(w, http.StatusOK, toMarket(md))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := s.deps.Portfolio.Snapshot()
	halted := p.IsHalted(s.deps.Risk)
	writeJSON(w, http.StatusOK, healthDTO{
		Status:        lo.Ternary(halted, "halted", "ok"),
		Environment:   string(s.deps.Risk.Environment),
		Halted:        halted,
		OpenPositions: len(p.Positions),
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

// queryInt lee un entero positivo de la query. Escribe un 400 si no es válido.
func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", key))
		return 0, false
	}
	return min(n, maxLimit), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("httpapi: encode response", "err", err)
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("httpapi: request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
