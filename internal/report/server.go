// Package report serves read-only views of strategies, portfolios, jobs and market data.
package report

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/exchange"
	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/internal/store"
	"algotrading/internal/strategy"
	"algotrading/pkg/exception"
)

const timeFormat = "2006-01-02 15:04:05"

// Source is the read side of the store.
type Source interface {
	AllStrategies(ctx context.Context) ([]strategy.Definition, error)
	StrategyByID(ctx context.Context, id uint) (strategy.Definition, error)
	PortfolioByID(ctx context.Context, id uint) (state.Snapshot, error)
	Valuations(ctx context.Context, portfolioID uint, since time.Time) ([]store.Valuation, error)
	Job(ctx context.Context, id string) (store.Job, error)
	Ticks(ctx context.Context, symbol string, after, before time.Time) ([]schema.Tick, error)
}

type Config struct {
	// AuthorisedIPs limits /api/v1. Empty allows every client.
	AuthorisedIPs []string
	// TrustedProxies are the peers whose X-Real-IP header is believed.
	TrustedProxies []string
	CORSOrigins    []string
}

type Server struct {
	source   Source
	pricer   state.Pricer
	gatherer prometheus.Gatherer
	cfg      Config
	logger   *zap.Logger
	router   *mux.Router
	now      func() time.Time
}

// NewServer builds the router. gatherer may be nil, in which case /metrics is not served.
func NewServer(source Source, pricer state.Pricer, gatherer prometheus.Gatherer, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		source:   source,
		pricer:   pricer,
		gatherer: gatherer,
		cfg:      cfg,
		logger:   logger,
		router:   mux.NewRouter(),
		now:      time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authorise)

	api.HandleFunc("/strategies", s.handleStrategies).Methods(http.MethodGet)
	api.HandleFunc("/strategies/{id}", s.handleStrategy).Methods(http.MethodGet)

	api.HandleFunc("/portfolios/{id}", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{id}/assets", s.handleAssets).Methods(http.MethodGet)

	api.HandleFunc("/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/log", s.handleJobLog).Methods(http.MethodGet)

	api.HandleFunc("/market-data", s.handleMarketData).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if status, ok := s.pricer.(exchange.Status); ok {
		s.router.HandleFunc("/exchange/open", s.handleExchangeOpen(status)).Methods(http.MethodGet)
	}
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("report server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) authorise(next http.Handler) http.Handler {
	allowed := ipSet(s.cfg.AuthorisedIPs)
	proxies := ipSet(s.cfg.TrustedProxies)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(allowed) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r, proxies)
		if _, ok := allowed[ip]; !ok {
			s.logger.Warn("unauthorised client", zap.String("ip", ip), zap.String("path", r.URL.Path))
			respondError(w, http.StatusUnauthorized, "client is not authorised")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ipSet(ips []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[strings.TrimSpace(ip)] = struct{}{}
	}
	return set
}

// clientIP is the peer address, or X-Real-IP when the peer is a trusted proxy.
func clientIP(r *http.Request, proxies map[string]struct{}) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if _, ok := proxies[peer]; !ok {
		return peer
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExchangeOpen(status exchange.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		open, err := status.IsOpen(r.Context())
		if err != nil {
			s.logger.Error("exchange status", zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "exchange status unavailable")
			return
		}
		respondJSON(w, http.StatusOK, ExchangeStatus{Open: open})
	}
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	defs, err := s.source.AllStrategies(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]StrategyInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, toStrategyInfo(d))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	def, err := s.source.StrategyByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStrategyInfo(def))
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	snap, err := s.source.PortfolioByID(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := state.Restore(snap).Valuate(ctx, s.pricer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vals, err := s.source.Valuations(ctx, id, time.Time{})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	history := make([]ValuationPoint, 0, len(vals))
	for _, v := range vals {
		history = append(history, ValuationPoint{ValuedAt: v.ValuedAt.UTC().Format(timeFormat), Value: v.Value.InexactFloat64()})
	}
	respondJSON(w, http.StatusOK, PortfolioInfo{
		ID:                   snap.PortfolioID,
		Name:                 snap.Name,
		Exchange:             snap.Exchange,
		Cash:                 FormatAmount(snap.Cash),
		Value:                FormatAmount(value),
		HistoricalValuations: history,
		PnL:                  PnL(vals, s.now().Add(-24*time.Hour)),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	snap, err := s.source.PortfolioByID(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pf := state.Restore(snap)
	out := make(map[string]AssetInfo, len(snap.Positions))
	for _, p := range snap.Positions {
		exposure, err := pf.Exposure(ctx, s.pricer, p.Symbol)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out[p.Symbol] = AssetInfo{Symbol: p.Symbol, Units: p.Units, Exposure: FormatAmount(exposure)}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	row, err := s.source.Job(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, JobInfo{
		ID:          row.ID,
		Name:        row.Name,
		Script:      row.Script,
		LogPath:     row.LogPath,
		StartTime:   row.StartedAt.UTC().Format(timeFormat),
		ElapsedTime: strconv.FormatFloat(row.ElapsedSeconds, 'f', 2, 64),
		FinishState: row.FinishState,
		Version:     row.Version,
		Phase:       row.Phase,
		Error:       row.Error,
	})
}

func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	row, err := s.source.Job(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if row.LogPath == "" {
		respondError(w, http.StatusNotFound, "job has no log")
		return
	}
	body, err := os.ReadFile(row.LogPath)
	if err != nil {
		s.logger.Error("read job log", zap.String("job_id", row.ID), zap.String("path", row.LogPath), zap.Error(err))
		respondError(w, http.StatusNotFound, "job log not available")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	now := s.now()
	before, err := timeParam(q.Get("before"), now)
	if err != nil {
		respondError(w, http.StatusBadRequest, "before: "+err.Error())
		return
	}
	after, err := timeParam(q.Get("after"), now.Add(-24*time.Hour))
	if err != nil {
		respondError(w, http.StatusBadRequest, "after: "+err.Error())
		return
	}

	ticks, err := s.source.Ticks(r.Context(), symbol, after, before)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(ticks) == 0 {
		respondError(w, http.StatusNotFound, "market data not available")
		return
	}
	out := make([][2]string, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, [2]string{t.ObservedAt.UTC().Format(timeFormat), FormatAmount(t.Price)})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, exception.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("report request", zap.String("path", r.URL.Path), zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return uint(id), true
}

// timeParam accepts RFC 3339 or "2006-01-02 15:04:05" in UTC.
func timeParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(timeFormat, raw, time.UTC)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	body, err := sonic.ConfigStd.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}
