// Package server exposes the sync coordinator over HTTP: write submission,
// forced refreshes, stats, stored records, a websocket stream of completed
// items, Prometheus metrics and a health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bernardzulu23/phasesync/internal/phase"
	"github.com/bernardzulu23/phasesync/internal/store"
	"github.com/bernardzulu23/phasesync/internal/sync"
)

const (
	readHeaderTimeout = 5 * time.Second
	maxBodyBytes      = 1 << 20
	defaultBuffer     = 64
)

// Coordinator is the subset of *sync.Coordinator the API drives.
type Coordinator interface {
	Submit(req sync.Request) (string, error)
	ForceSyncUser(ctx context.Context, userID string, p phase.Phase) error
	GetSyncStats() sync.Stats
	Subscribe(ctx context.Context, key phase.Key, buffer int) <-chan sync.SyncItem
}

// RecordLister reads stored records for a user.
type RecordLister interface {
	List(ctx context.Context, userID string) ([]store.Record, error)
}

// Options holds the handler's collaborators.
type Options struct {
	Coordinator      Coordinator
	Records          RecordLister
	Gatherer         prometheus.Gatherer // nil serves the default registry
	Logger           *slog.Logger
	SubscriberBuffer int
}

// Handler wires the HTTP API to the coordinator.
type Handler struct {
	coord    Coordinator
	records  RecordLister
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	buffer   int
}

// New constructs a Handler.
func New(opts Options) *Handler {
	h := &Handler{
		coord:    opts.Coordinator,
		records:  opts.Records,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
		buffer:   opts.SubscriberBuffer,
	}

	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}

	if h.logger == nil {
		h.logger = slog.Default()
	}

	if h.buffer <= 0 {
		h.buffer = defaultBuffer
	}

	return h
}

// Router returns the full route tree with request IDs, panic recovery and
// access logging.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	h.Register(r)

	return r
}

// Register mounts the API endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", h.HandleSync)
		r.Get("/stats", h.HandleStats)
		r.Get("/events", h.HandleEvents)
		r.Post("/users/{userID}/force", h.HandleForce)
		r.Get("/users/{userID}/records", h.HandleRecords)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// NewServer builds an HTTP server for handler on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Serve runs srv on ln until ctx ends, then shuts it down within
// shutdownTimeout. A clean shutdown returns nil.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("http server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server: serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutting down: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serving: %w", err)
	}

	logger.Info("http server stopped")

	return nil
}
