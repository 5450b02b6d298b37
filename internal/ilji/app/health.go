package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bdobrica/ilji/common/version"
)

// StatusSource provides the numbers behind /status.
type StatusSource interface {
	ConversationCount(ctx context.Context) (int, error)
}

// PublishStats reports recent publish failures. *store.Store satisfies it.
type PublishStats interface {
	PublishFailuresSince(ctx context.Context, since time.Time) (int, error)
	Ping(ctx context.Context) error
}

// HealthServer serves /health and /status. It is optional; the bot runs
// without it when HTTP_ADDR is empty.
type HealthServer struct {
	addr      string
	convs     StatusSource
	publishes PublishStats
	adapters  []string
	startedAt time.Time
	router    chi.Router
	server    *http.Server
	logger    *slog.Logger
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type statusResponse struct {
	Status            string    `json:"status"`
	Version           string    `json:"version"`
	Commit            string    `json:"commit"`
	StartedAt         time.Time `json:"started_at"`
	UptimeSecs        float64   `json:"uptime_seconds"`
	ConversationCount int       `json:"conversation_count"`
	PublishFailures   int       `json:"publish_failures_24h"`
	Adapters          []string  `json:"adapters"`
	Error             string    `json:"error,omitempty"`
}

// NewHealthServer builds the router; publishes may be nil.
func NewHealthServer(addr string, convs StatusSource, publishes PublishStats, adapters []string, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	hs := &HealthServer{
		addr:      addr,
		convs:     convs,
		publishes: publishes,
		adapters:  adapters,
		startedAt: time.Now(),
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", hs.handleHealth)
	r.Get("/status", hs.handleStatus)
	hs.router = r
	return hs
}

// ServeHTTP implements http.Handler.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Start listens in the background and returns once the port is open.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}
	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		h.logger.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server stopped", "err", err)
		}
	}()
	return nil
}

// Stop shuts the server down.
func (h *HealthServer) Stop(ctx context.Context) {
	if h.server == nil {
		return
	}
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Warn("health server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Version})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.Commit(),
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		Adapters:   h.adapters,
	}
	if resp.Adapters == nil {
		resp.Adapters = []string{}
	}
	code := http.StatusOK

	if h.publishes != nil {
		if err := h.publishes.Ping(ctx); err != nil {
			resp.Status, resp.Error = "degraded", "database: "+err.Error()
			code = http.StatusServiceUnavailable
		} else if n, err := h.publishes.PublishFailuresSince(ctx, time.Now().Add(-24*time.Hour)); err == nil {
			resp.PublishFailures = n
		}
	}
	if h.convs != nil && code == http.StatusOK {
		if n, err := h.convs.ConversationCount(ctx); err == nil {
			resp.ConversationCount = n
		}
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
