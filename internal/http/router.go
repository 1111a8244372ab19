package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/idempotency"
)

type RouterOptions struct {
	Idempotency *idempotency.Idempotency
	// Limiter may be nil, which disables rate limiting.
	Limiter         Limiter
	RateLimitPerMin int
	ScanRateLimit   int
	// ScannerAuth guards the admission endpoint and is required.
	ScannerAuth ScannerAuth
}

func SetupRouter(h *Handlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(h.logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(h.RateLimitMiddleware(opts.Limiter, "api", opts.RateLimitPerMin))
		}
		r.Get("/v1/events", h.ListEvents)
		r.Get("/v1/events/{id}/rates", h.ListRates)
		r.Post("/v1/enquiries", h.CreateEnquiry)
		r.Get("/v1/intents/{id}", h.GetIntent)
		r.Post("/v1/intents/{id}/confirm", h.ConfirmIntent)
		r.With(h.IdempotencyMiddleware(opts.Idempotency)).Post("/v1/intents", h.CreateIntent)
	})

	r.Group(func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(h.RateLimitMiddleware(opts.Limiter, "scan", opts.ScanRateLimit))
		}
		r.Post("/v1/scanner/login", h.ScannerLogin(opts.ScannerAuth))
		r.With(h.ScannerAuthMiddleware(opts.ScannerAuth)).Post("/v1/admissions", h.Admit)
	})

	return r
}
