// ABOUTME: HTTP server wiring for the perimeter credential service
// ABOUTME: Assembles store, codec, guard and routes; manages lifecycle and shutdown

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/perimeterhq/perimeter/internal/auth"
	"github.com/perimeterhq/perimeter/internal/config"
	"github.com/perimeterhq/perimeter/internal/keys"
	"github.com/perimeterhq/perimeter/internal/store"
	"github.com/perimeterhq/perimeter/internal/token"
)

// Server assembles the perimeter components behind a single HTTP listener.
type Server struct {
	config     *config.Config
	store      store.Store
	codec      *token.Codec
	service    *auth.Service
	guard      *auth.Guard
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server from configuration. The store is opened here and
// closed during Shutdown.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	material, err := keys.New(cfg.Auth.JWT)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("resolving key material: %w", err)
	}

	srv := build(cfg, s, material, logger)
	return srv, nil
}

// build wires the components onto a mux. Split from New so tests can supply
// their own store and key material.
func build(cfg *config.Config, s store.Store, material *keys.Material, logger *slog.Logger) *Server {
	codec := token.NewCodec(material)
	service := auth.NewService(s, codec, cfg.Auth, logger)
	guard := auth.NewGuard(s, codec, logger)

	srv := &Server{
		config:  cfg,
		store:   s,
		codec:   codec,
		service: service,
		guard:   guard,
		logger:  logger.With("component", "server"),
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("GET /health", srv.handleHealth)

	// Login endpoints
	auth.NewHandlers(service).Register(mux)

	// Protected surface
	mux.Handle("GET /me", guard.Middleware(http.HandlerFunc(srv.handleMe)))

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler exposes the assembled mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// meResponse describes the caller's resolved identity.
type meResponse struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	Issuer    string `json:"issuer"`
	KeyID     string `json:"key_id,omitempty"`
	Expiry    int64  `json:"expiry"`
}

// handleMe returns the identity the guard resolved for this request.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		// Guard always runs first on this route; a missing identity is a
		// wiring defect.
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meResponse{
		AccountID: identity.Account.ID,
		Username:  identity.Account.Username,
		SessionID: identity.Session.ID,
		Issuer:    identity.Session.Issuer,
		KeyID:     identity.Session.KeyID,
		Expiry:    identity.Session.Expiry,
	})
}
