// Package server exposes species lookups over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/dexcache/pkg/models"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Service is the lookup surface the server needs.
type Service interface {
	Lookup(ctx context.Context, name string) (models.LookupResult, error)
	Forget(name string) bool
}

// Metrics records served requests and exposes them for scraping.
type Metrics interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	Handler() http.Handler
}

// Server is the dexcache HTTP front end.
type Server struct {
	listen         string
	svc            Service
	logger         *zap.Logger
	metrics        Metrics
	requestTimeout time.Duration
	mux            *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records requests and serves GET /metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRequestTimeout bounds how long a request waits for a lookup.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// New creates a Server listening on listen once started.
func New(listen string, svc Service, opts ...Option) *Server {
	s := &Server{
		listen: listen,
		svc:    svc,
		logger: zap.NewNop(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /species/{name}", s.handleLookup)
	s.mux.HandleFunc("DELETE /species/{name}", s.handleForget)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	r = r.WithContext(withRequestID(r.Context(), id))

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordHTTPRequest(r.Method, route, sw.status, elapsed)
	}
	s.logger.Info("request",
		zap.String("request_id", id),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", sw.status),
		zap.Duration("duration", elapsed),
	)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dexcache listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	translated := true
	if v := r.URL.Query().Get("translated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, string(models.KindInvalidArgument), "translated must be a boolean")
			return
		}
		translated = b
	}

	res, err := s.svc.Lookup(ctx, r.PathValue("name"))
	if err != nil {
		code, typ := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.logger.Warn("lookup failed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("species", r.PathValue("name")),
				zap.Error(err))
		}
		writeJSONError(w, code, typ, err.Error())
		return
	}

	if !translated {
		res = res.Plain()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Forget(r.PathValue("name")) {
		writeJSONError(w, http.StatusNotFound, string(models.KindNotFound), "not cached")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// statusFor maps a lookup error to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch kind := models.KindOf(err); kind {
	case models.KindInvalidArgument:
		return http.StatusBadRequest, string(kind)
	case models.KindNotFound:
		return http.StatusNotFound, string(kind)
	case models.KindUnavailable, models.KindParse:
		return http.StatusBadGateway, string(kind)
	case models.KindRateLimited:
		return http.StatusServiceUnavailable, string(kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeJSONError(w http.ResponseWriter, code int, typ, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":%q,"code":%d}}`, message, typ, code)
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
