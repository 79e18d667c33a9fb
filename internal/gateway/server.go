package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/quotegate/internal/domain"
)

// QuoteProvider is the pipeline surface the server exposes on /api/quote.
type QuoteProvider interface {
	GetQuote(ctx context.Context, ticker, exchange, group, rng string, force bool) (*domain.Record, error)
}

// ServerConfig carries the HTTP-level settings.
type ServerConfig struct {
	Port    int
	DevMode bool
}

// Server is the gateway HTTP surface.
type Server struct {
	router    chi.Router
	server    *http.Server
	svc       *Service
	quotes    QuoteProvider
	log       zerolog.Logger
	startTime time.Time
}

// NewServer wires the HTTP surface over the gateway engine and the quote
// pipeline.
func NewServer(cfg ServerConfig, svc *Service, quotes QuoteProvider, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		svc:       svc,
		quotes:    quotes,
		log:       log.With().Str("component", "server").Logger(),
		startTime: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Cache", "X-Cache-TTL"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/fetch", s.handleFetch)
		r.Post("/fetch", s.handleFetch)
		r.Get("/quote", s.handleQuote)
		r.Get("/system/status", s.handleSystemStatus)
	})
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the listener fails or shuts down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleFetch proxies one upstream route through the gateway engine.
// Parameters arrive as query values; POST form fields are folded in too.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	apiID := r.Form.Get("apiId")
	if apiID == "" {
		http.Error(w, "apiId is required", http.StatusBadRequest)
		return
	}
	params := make(map[string]string)
	for name := range r.Form {
		if name == "apiId" {
			continue
		}
		params[name] = r.Form.Get(name)
	}

	resp, err := s.svc.Execute(r.Context(), apiID, params, clientIP(r))
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	w.Header().Set("X-Cache", resp.CacheState)
	w.Header().Set("X-Cache-TTL", fmt.Sprintf("%d", int(resp.TTL.Seconds())))
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		// Upstream errors surface as a gateway failure, never as a pass-
		// through status the client might mistake for its own request.
		w.WriteHeader(http.StatusBadGateway)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	w.Write(resp.Body)
}

// writeGatewayError maps engine errors onto the gateway status contract.
func (s *Server) writeGatewayError(w http.ResponseWriter, err error) {
	var rateErr *RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateErr.RetryAfter.Seconds()+0.5)))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, ErrInvalidParam):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrUnknownRoute), errors.Is(err, ErrMissingParam):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Warn().Err(err).Msg("Upstream fetch failed")
		http.Error(w, "upstream failure", http.StatusBadGateway)
	}
}

// handleQuote runs the full pipeline for one instrument.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refresh := q.Get("refresh") == "true" || q.Get("refresh") == "1"

	rec, err := s.quotes.GetQuote(
		r.Context(),
		q.Get("ticker"),
		q.Get("exchange"),
		q.Get("group"),
		q.Get("range"),
		refresh,
	)
	if err != nil {
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateErr.RetryAfter.Seconds()+0.5)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rec == nil {
		http.Error(w, "no data for instrument", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleSystemStatus reports process and host health.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		status["cpu_percent"] = cpuPercent[0]
	} else if err != nil {
		s.log.Debug().Err(err).Msg("Failed to read CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = memStat.UsedPercent
		status["memory_used_mb"] = memStat.Used / 1024 / 1024
	} else {
		s.log.Debug().Err(err).Msg("Failed to read memory usage")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Msg("Request")
	})
}
