package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/notebook"
	"github.com/tailored-agentic-units/autods/observability"
)

const shutdownTimeout = 5 * time.Second

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithObserver sets the observer for request and socket events.
func WithObserver(o observability.Observer) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithLogger sets the logger for transport failures that have no caller to
// report to.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithCheckOrigin replaces the WebSocket origin check. By default every
// origin is accepted.
func WithCheckOrigin(fn func(*http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// WithHandlerOptions adds Connect handler options such as interceptors.
func WithHandlerOptions(opts ...connect.HandlerOption) ServerOption {
	return func(s *Server) { s.handlerOpts = append(s.handlerOpts, opts...) }
}

// Server serves a session registry over HTTP.
type Server struct {
	registry    *kernel.Registry
	router      *httprouter.Router
	upgrader    websocket.Upgrader
	observer    observability.Observer
	logger      *slog.Logger
	handlerOpts []connect.HandlerOption
}

// NewServer creates a Server for registry with its routes installed.
func NewServer(registry *kernel.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		router:   httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		observer: observability.NoOpObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	svc := NewService(s.registry, s.observer)
	for procedure, h := range svc.Handlers(s.handlerOpts...) {
		s.router.Handler(http.MethodPost, procedure, h)
	}

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/sessions", s.handleSessions)
	s.router.GET("/sessions/:id/notebook", s.handleNotebook)
	s.router.GET("/ws/chat", s.handleChatSocket)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	s.logger.Info("transport listening", "addr", l.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.registry.IDs()),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.IDs()})
}

func (s *Server) handleNotebook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	data, err := s.registry.Notebook(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, kernel.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", notebook.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "autods-"+id+".ipynb"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write notebook", "session", id, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
