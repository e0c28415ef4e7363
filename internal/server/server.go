// Package server exposes the blackjack engine over HTTP: a JSON REST API
// and a websocket endpoint per game that streams updates and accepts moves.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/service"
	"github.com/rs/zerolog"
)

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the server configuration.
func WithConfig(cfg *Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithClock sets the clock used for websocket pings and message stamps.
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// Server serves the REST and websocket APIs.
type Server struct {
	config   *Config
	games    *service.Service
	players  *player.Service
	hub      *Hub
	logger   *log.Logger
	clock    quartz.Clock
	upgrader websocket.Upgrader
	limiter  *rateLimiter

	accessLog *zerolog.Logger
}

// New creates a server. Events published to hub reach websocket watchers;
// the caller wires hub into the game service's publishers.
func New(games *service.Service, players *player.Service, hub *Hub, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		config:  DefaultConfig(),
		games:   games,
		players: players,
		hub:     hub,
		logger:  logger.WithPrefix("server"),
		clock:   quartz.NewReal(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = newRateLimiter(s.config.Server.RateLimit, s.config.Server.RateBurst, s.clock)
	return s
}

// Handler returns the routed, rate limited HTTP handler, wrapped in the
// access log when one is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /games/new", s.handleCreateGame)
	mux.HandleFunc("GET /games", s.handleListGames)
	mux.HandleFunc("GET /games/{id}", s.handleGetGame)
	mux.HandleFunc("POST /games/{id}/move", s.handleMove)
	mux.HandleFunc("GET /games/{id}/result", s.handleResult)
	mux.HandleFunc("DELETE /games/{id}/delete", s.handleDeleteGame)

	mux.HandleFunc("POST /players/new", s.handleCreatePlayer)
	mux.HandleFunc("GET /players/ranking", s.handleRanking)
	mux.HandleFunc("GET /players/{id}", s.handleGetPlayer)
	mux.HandleFunc("PUT /players/{id}/name", s.handleRenamePlayer)

	mux.HandleFunc("GET /ws/games/{id}", s.handleWebSocket)

	handler := s.limiter.middleware(mux)
	if s.accessLog != nil {
		handler = accessLogMiddleware(*s.accessLog, s.clock, handler)
	}
	return handler
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.limiter.sweep(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	s.hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, l)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}
