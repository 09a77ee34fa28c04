package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TrafficFeeds/internal/metrics"
)

// NewRouter configures all HTTP routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(instrument)

		r.Get("/availability", h.Availability)
		r.Get("/feeds", h.Feeds)
		r.Put("/selection", h.UpdateSelection)
		r.Get("/snapshot", h.Snapshot)
		r.Get("/markers", h.Markers)
		r.Get("/export", h.Export)
	})

	return r
}

// instrument records request count and latency per matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, route, statusOf(ww), time.Since(start))
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusOf(ww),
			"bytes", ww.BytesWritten(),
			"request_id", chimiddleware.GetReqID(r.Context()),
			"elapsed", time.Since(start))
	})
}

func statusOf(ww chimiddleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
