// Package server provides the HTTP server for the facultyid registration service.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/facultyid/internal/recognition"
	"github.com/ayusman/facultyid/internal/server/api"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
	"github.com/rs/cors"
)

// Service is the application surface the server exposes.
type Service interface {
	api.Registrar
	api.Directory
	Recognize(ctx context.Context, window time.Duration, sink recognition.Sink) (recognition.Stats, error)
}

// Config holds the server configuration.
type Config struct {
	StaticDir   string
	App         Service
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server represents the HTTP server for the facultyid application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	log     *slog.Logger
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		log:    logger,
		start:  time.Now(),
	}
	s.setupRoutes()

	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.mux)

	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.App != nil {
		s.mux.Handle("/register/", api.NewRegisterHandler(s.config.App, s.log))

		identities := api.NewIdentityHandler(s.config.App)
		s.mux.Handle("/api/identities", identities)
		s.mux.Handle("/api/identities/", identities)

		s.mux.Handle("/api/recognize", NewRecognizeHandler(s.config.App, s.config.CORSOrigins, s.log))
	}

	// Serve the frontend build if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Under systemd the service manager is notified once the
// listener is bound.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.log.Warn("systemd notify failed", "error", err)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
