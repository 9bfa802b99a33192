package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"roomauction/internal/config"
	"roomauction/internal/service"
)

// snapshotInterval is how often the server polls the service for a fresh
// snapshot to broadcast to connected dashboard clients; roomauction has no
// live event channel of its own, unlike the teacher's engine.
const snapshotInterval = 2 * time.Second

// Server runs the HTTP/WebSocket API for the dashboard
type Server struct {
	cfg      config.DashboardConfig
	svc      *service.Service
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
	stop     chan struct{}
}

// NewServer creates a new API server
func NewServer(
	cfg config.DashboardConfig,
	svc *service.Service,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(svc, cfg, hub, logger)

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	// Serve static files (web dashboard)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		svc:      svc,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
		stop:     make(chan struct{}),
	}
}

// Start starts the API server and hub
func (s *Server) Start() error {
	// Start WebSocket hub
	go s.hub.Run()

	// Start snapshot broadcaster
	go s.broadcastLoop()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// broadcastLoop periodically rebuilds the dashboard snapshot and pushes it
// to every connected client.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			snapshot, err := BuildSnapshot(context.Background(), s.svc)
			if err != nil {
				s.logger.Error("failed to build snapshot for broadcast", "error", err)
				continue
			}
			s.hub.BroadcastSnapshot(snapshot)
		}
	}
}
