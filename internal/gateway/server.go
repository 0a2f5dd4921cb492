// Package gateway exposes the orchestration core over HTTP: the
// per-session websocket stream, health, and metrics.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/orchestrator"
	"github.com/clipforge/clipforge/internal/sessions"
)

// Server is the clipforge gateway server.
type Server struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	bus      *events.Bus
	sessions *sessions.Store
	logger   *slog.Logger

	http     *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a gateway server.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, bus *events.Bus, store *sessions.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		bus:      bus,
		sessions: store,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving requests and blocks until the listener fails or the
// server is stopped.
func (s *Server) Start(ctx context.Context) error {
	go s.evictIdleSessions(ctx)

	s.logger.Info("starting gateway", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gateway")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// evictIdleSessions periodically removes sessions past the idle TTL and
// drops their event rings.
func (s *Server) evictIdleSessions(ctx context.Context) {
	ttl := s.cfg.Sessions.IdleTimeout
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.sessions.EvictIdle(ttl) {
				s.bus.RemoveSession(id)
				s.logger.Info("session evicted", "session_id", id)
			}
		}
	}
}
