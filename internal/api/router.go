// Package api exposes the HTTP surface of the producer and consumer services.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/auth"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
)

// TrackPath is the ingestion endpoint.
const TrackPath = "/api/v1/events/track"

// DefaultMaxBodyBytes caps the size of a tracked event body.
const DefaultMaxBodyBytes int64 = 1 << 20

// Tracker validates and enqueues one raw event.
type Tracker interface {
	TrackEvent(ctx context.Context, raw []byte) (domain.ActivityEvent, error)
}

// Option configures optional behaviour for the routers.
type Option func(*Handler)

// WithLogger overrides the access and error logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithAuth requires bearer tokens carrying the events:write scope on the
// ingestion endpoint. A config without a secret leaves the endpoint open.
func WithAuth(cfg auth.Config) Option {
	return func(h *Handler) {
		h.auth = cfg
	}
}

// WithMaxBodyBytes overrides the request body limit.
func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBodyBytes = limit
		}
	}
}

// Handler coordinates HTTP requests with the producer service.
type Handler struct {
	tracker      Tracker
	logger       zerolog.Logger
	auth         auth.Config
	maxBodyBytes int64
}

func newHandler(tracker Tracker, opts ...Option) *Handler {
	h := &Handler{
		tracker:      tracker,
		logger:       zerolog.Nop(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewProducerRouter serves event ingestion, health and metrics.
func NewProducerRouter(tracker Tracker, opts ...Option) http.Handler {
	h := newHandler(tracker, opts...)
	r := h.baseRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(h.auth, nil).Wrap)
		r.Use(auth.RequireScope(auth.ScopeEventsWrite))
		r.Post(TrackPath, h.trackEvent)
	})
	return r
}

// NewHealthRouter serves health and metrics only; the consumer exposes it.
func NewHealthRouter(opts ...Option) http.Handler {
	return newHandler(nil, opts...).baseRouter()
}

func (h *Handler) baseRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(otelhttp.NewMiddleware("http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/health", health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
