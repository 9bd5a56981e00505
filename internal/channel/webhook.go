package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"slackrelay/internal/domain"
	"slackrelay/internal/ingest"
	"slackrelay/internal/metrics"
	"slackrelay/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	maxBodyBytes  = 1 << 20 // 1MB
	apiKeyHeader  = "X-API-Key"
	shutdownGrace = 5 * time.Second
	drainGrace    = 30 * time.Second
)

// WebhookConfig configures the HTTP server.
type WebhookConfig struct {
	Addr        string
	Path        string // webhook URL path (default: /webhook)
	Async       bool   // answer 202 and relay in the background
	Gate        *ingest.Gate
	Relayer     Relayer
	Notifier    Notifier // optional; enables POST /api/notify
	Metrics     *metrics.Collector
	CORSOrigins []string      // empty disables CORS
	DrainGrace  time.Duration // how long relays may run after shutdown starts (default: 30s)
	Logger      *slog.Logger
}

// Webhook serves the callback endpoint plus health and metrics.
type Webhook struct {
	addr     string
	path     string
	async    bool
	gate     *ingest.Gate
	relayer  Relayer
	notifier Notifier
	metrics  *metrics.Collector
	logger   *slog.Logger
	router   *chi.Mux
	server   *http.Server

	// Every relay, synchronous or background, runs under relayCtx, which
	// is cancelled once the drain grace runs out.
	drainGrace  time.Duration
	relayCtx    context.Context
	relayCancel context.CancelFunc
	inflight    sync.WaitGroup
}

// NewWebhook creates the HTTP server and registers its routes.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = drainGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	relayCtx, relayCancel := context.WithCancel(context.Background())
	w := &Webhook{
		addr:        cfg.Addr,
		path:        cfg.Path,
		async:       cfg.Async,
		gate:        cfg.Gate,
		relayer:     cfg.Relayer,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		drainGrace:  cfg.DrainGrace,
		relayCtx:    relayCtx,
		relayCancel: relayCancel,
	}
	w.router = newRouter(cfg.Logger, cfg.CORSOrigins)
	w.registerRoutes()
	return w
}

func (w *Webhook) Name() string { return "webhook" }

// Handler returns the router, for tests and embedding.
func (w *Webhook) Handler() http.Handler { return w.router }

func newRouter(logger *slog.Logger, origins []string) *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	if len(origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", apiKeyHeader},
			MaxAge:         300,
		}))
	}
	return router
}

func (w *Webhook) registerRoutes() {
	w.router.Post(w.path, w.handleWebhook)
	w.router.Get("/health", w.handleHealth)
	if w.metrics != nil {
		w.router.Get("/metrics", w.metrics.Handler())
		w.router.Method(http.MethodGet, "/metrics/prometheus", w.metrics.PrometheusHandler())
	}
	if w.notifier != nil {
		w.router.Route("/api", func(r chi.Router) {
			r.Post("/notify", w.handleNotify)
		})
	}
}

// Start listens on the configured address and serves until ctx is done.
func (w *Webhook) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("webhook server: %w", err)
	}
	return w.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done, then shuts down gracefully
// and drains relays.
func (w *Webhook) Serve(ctx context.Context, ln net.Listener) error {
	w.server = &http.Server{
		Handler:           w.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return w.relayCtx },
	}

	w.logger.Info("webhook server starting", "addr", ln.Addr().String(), "path", w.path, "async", w.async)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		return w.shutdown()
	case err := <-errCh:
		w.Drain(0)
		return fmt.Errorf("webhook server: %w", err)
	}
}

// shutdown stops accepting requests and gives relays, synchronous and
// background, up to the drain grace to finish. Relays still running
// after that are cancelled and answer as failed.
func (w *Webhook) shutdown() error {
	deadline := time.Now().Add(w.drainGrace)
	stopped := make(chan error, 1)
	go func() { stopped <- w.server.Shutdown(context.Background()) }()

	grace := time.NewTimer(w.drainGrace)
	defer grace.Stop()

	var err error
	select {
	case err = <-stopped:
	case <-grace.C:
		w.logger.Warn("cancelling relays still in flight")
		w.relayCancel()
		select {
		case err = <-stopped:
		case <-time.After(shutdownGrace):
			w.server.Close()
			err = fmt.Errorf("webhook shutdown: %w", context.DeadlineExceeded)
		}
	}

	// Handlers have returned unless the server was force-closed above.
	w.Drain(time.Until(deadline))
	return err
}

// Drain waits up to grace for background relays, then cancels the rest
// and waits for them to report.
func (w *Webhook) Drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()

	if grace > 0 {
		select {
		case <-done:
			w.relayCancel()
			return
		case <-time.After(grace):
			w.logger.Warn("cancelling background relays still in flight")
		}
	}
	w.relayCancel()
	<-done
}

func (w *Webhook) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "healthy"})
}

func (w *Webhook) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(apiKeyHeader)
	if err := w.gate.Authenticate(key); err != nil {
		w.reject(rw, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	if err != nil {
		w.reject(rw, r, fmt.Errorf("%w: %v", ingest.ErrMalformedPayload, err))
		return
	}

	msg, err := w.gate.Admit(body, key)
	if err != nil {
		w.reject(rw, r, err)
		return
	}

	w.logger.Info("webhook received",
		"source", relay.SourceLabel(msg),
		"message_length", len(msg.Text),
		"request_id", middleware.GetReqID(r.Context()),
	)

	if w.async {
		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			w.countRelay(w.relayer.Relay(w.relayCtx, msg))
		}()
		writeJSON(rw, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	res := w.relayer.Relay(r.Context(), msg)
	w.countRelay(res)
	if !res.Delivered {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "Failed to relay message"})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

// reject answers an ingestion error without revealing more than its class.
func (w *Webhook) reject(rw http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		label   string
		message string
		missing *ingest.MissingFieldError
	)
	switch {
	case errors.Is(err, ingest.ErrUnauthorized):
		status, label, message = http.StatusUnauthorized, "unauthorized", "Unauthorized"
	case errors.As(err, &missing):
		status, label, message = http.StatusBadRequest, "missing_message", "Missing required field: "+missing.Field
	case errors.Is(err, ingest.ErrEmptyMessage):
		status, label, message = http.StatusBadRequest, "empty_message", "Message cannot be empty"
	default:
		status, label, message = http.StatusBadRequest, "invalid_json", "Invalid JSON"
	}

	w.countRequest(label)
	w.logger.Warn("webhook request rejected",
		"status", label,
		"remote", r.RemoteAddr,
		"err", err,
	)
	writeJSON(rw, status, map[string]string{"error": message})
}

func (w *Webhook) countRelay(res domain.RelayResult) {
	if res.Delivered {
		w.countRequest("success")
		return
	}
	w.countRequest("relay_failed")
}

func (w *Webhook) countRequest(status string) {
	if w.metrics != nil {
		w.metrics.WebhookRequest(status)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
