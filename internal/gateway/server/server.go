// Package server is the gateway's HTTP front door.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/drblury/flowgate/internal/gateway/pipeline"
	"github.com/drblury/flowgate/internal/gateway/response"
	"github.com/drblury/flowgate/internal/runtime/jsoncodec"
	"github.com/drblury/flowgate/internal/runtime/logging"
	"github.com/drblury/flowgate/internal/runtime/metadata"
)

const defaultMaxBodyBytes = 10 << 20

// Handler runs parsed requests. *pipeline.Pipeline satisfies it.
type Handler interface {
	Handle(ctx context.Context, in pipeline.Incoming) response.Response
}

// Config tunes the server.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	// Ready backs /healthz. Nil means always ready.
	Ready func() bool
}

// Server routes every GET, POST, PUT and DELETE to the pipeline.
type Server struct {
	cfg     Config
	handler Handler
	router  *mux.Router
	logger  logging.ServiceLogger
}

// New wires the routes. It does not listen.
func New(h Handler, cfg Config, logger logging.ServiceLogger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		handler: h,
		router:  mux.NewRouter(),
		logger:  logging.WithComponent(logger, "server"),
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		s.router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}
	s.router.PathPrefix("/").HandlerFunc(s.handleGateway).
		Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleUnrouted)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleUnrouted)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", logging.LogFields{"address": s.cfg.Address})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Gateway shutting down", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Ready != nil && !s.cfg.Ready() {
		s.write(w, response.Custom(http.StatusServiceUnavailable, map[string]any{"status": "starting"}, nil))
		return
	}
	s.write(w, response.Custom(http.StatusOK, map[string]any{"status": "ok"}, nil))
}

func (s *Server) handleUnrouted(w http.ResponseWriter, _ *http.Request) {
	s.write(w, response.Unknown())
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	in, err := s.parse(r)
	if err != nil {
		s.write(w, response.InvalidBody([]string{err.Error()}))
		return
	}
	s.write(w, s.handler.Handle(r.Context(), in))
}

func (s *Server) parse(r *http.Request) (pipeline.Incoming, error) {
	in := pipeline.Incoming{
		Method:  r.Method,
		URL:     absoluteURL(r),
		Path:    r.URL.Path,
		Query:   flatten(r.URL.Query()),
		Headers: metadata.FromHTTP(r.Header),
	}

	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return in, fmt.Errorf("body: %v", err)
	}
	if len(raw) == 0 {
		return in, nil
	}
	if !isJSON(r.Header.Get("Content-Type")) {
		in.Body = string(raw)
		return in, nil
	}
	if err := jsoncodec.Unmarshal(raw, &in.Body); err != nil {
		return in, errors.New("body: invalid JSON")
	}
	return in, nil
}

func (s *Server) write(w http.ResponseWriter, res response.Response) {
	for k, values := range res.Header() {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	var payload []byte
	if text, ok := res.Body().(string); ok && w.Header().Get("Content-Type") != "" && !isJSON(w.Header().Get("Content-Type")) {
		payload = []byte(text)
	} else {
		encoded, err := jsoncodec.Marshal(res.Body())
		if err != nil {
			s.logger.Error("Failed to encode response", err, nil)
			res = response.InternalError()
			encoded, _ = jsoncodec.Marshal(res.Body())
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		payload = encoded
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(res.Code())
	if _, err := w.Write(payload); err != nil {
		s.logger.Debug("Client went away", logging.LogFields{"error": err.Error()})
	}
}

func isJSON(contentType string) bool {
	return contentType == "" || strings.Contains(strings.ToLower(contentType), "json")
}

func absoluteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func flatten(values map[string][]string) metadata.Metadata {
	out := make(metadata.Metadata, len(values))
	for k, v := range values {
		out[k] = strings.Join(v, ",")
	}
	return out
}
