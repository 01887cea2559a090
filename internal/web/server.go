package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/solatis/microproto/internal/device"
	"github.com/solatis/microproto/internal/system"
	"github.com/solatis/microproto/internal/transport"
	"github.com/solatis/microproto/internal/types"
)

const (
	// maxBodySize bounds JSON request bodies and program uploads.
	maxBodySize = 64 << 10

	// DefaultWriteTimeout bounds a single WebSocket write.
	DefaultWriteTimeout = 5 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithAuth wraps every route except /healthz and /metrics.
func WithAuth(mw func(http.Handler) http.Handler) Option { return func(s *Server) { s.auth = mw } }

// WithWriteTimeout sets the WebSocket write timeout.
func WithWriteTimeout(d time.Duration) Option { return func(s *Server) { s.writeTimeout = d } }

// WithMaxPacket sets the read limit of binary protocol connections.
func WithMaxPacket(n int) Option { return func(s *Server) { s.maxPacket = n } }

// Server is the HTTP face of a device.
type Server struct {
	ctrl *device.Controller
	hub  *transport.Hub
	sys  *system.System

	log          zerolog.Logger
	gatherer     prometheus.Gatherer
	auth         func(http.Handler) http.Handler
	writeTimeout time.Duration
	maxPacket    int
	upgrader     websocket.Upgrader

	router *Router
}

// NewServer builds the routes of the control surface.
func NewServer(ctrl *device.Controller, hub *transport.Hub, opts ...Option) *Server {
	s := &Server{
		ctrl:         ctrl,
		hub:          hub,
		sys:          hub.System(),
		log:          zerolog.Nop(),
		gatherer:     prometheus.DefaultGatherer,
		writeTimeout: DefaultWriteTimeout,
		maxPacket:    types.DefaultMaxPacket,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		router: &Router{},
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	s.router.Handle(http.MethodGet, "/healthz", s.health)
	s.router.Handle(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ Params) {
		metrics.ServeHTTP(w, r)
	})

	s.handle(http.MethodGet, "/api/properties", s.listProperties)
	s.handle(http.MethodGet, "/api/properties/{name}", s.getProperty)
	s.handle(http.MethodPut, "/api/properties/{name}", s.putProperty)
	s.handle(http.MethodGet, "/api/properties/{name}/schema", s.propertySchema)

	s.handle(http.MethodGet, "/api/programs", s.listPrograms)
	s.handle(http.MethodGet, "/api/programs/{name}", s.getProgram)
	s.handle(http.MethodPost, "/api/programs/{name}", s.uploadProgram)
	s.handle(http.MethodDelete, "/api/programs/{name}", s.deleteProgram)
	s.handle(http.MethodPost, "/api/programs/{name}/select", s.selectProgram)
	s.handle(http.MethodGet, "/api/show", s.show)

	s.handle(http.MethodGet, "/ws", s.serveText)
	s.handle(http.MethodGet, "/ws/proto", s.serveProto)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handle(method, pattern string, h HandlerFunc) {
	if s.auth == nil {
		s.router.Handle(method, pattern, h)
		return
	}
	mw := s.auth
	s.router.Handle(method, pattern, func(w http.ResponseWriter, r *http.Request, p Params) {
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, p)
		})).ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"properties": s.sys.Count(),
		"clients":    s.hub.Sessions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps err onto a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrFieldNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, types.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, types.ErrCoercionFailed),
		errors.Is(err, types.ErrTypeMismatch),
		errors.Is(err, types.ErrInvalidPath),
		errors.Is(err, types.ErrPathTooDeep),
		errors.Is(err, types.ErrInvalidName),
		errors.Is(err, device.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
