package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/idempotency"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/operator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.ContextWithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware counts requests by route pattern rather than raw path.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

// IdempotencyMiddleware requires an Idempotency-Key and replays the stored
// response for a key that has already completed.
func (h *Handlers) IdempotencyMiddleware(idemp *idempotency.Idempotency) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				h.writeError(w, r, domain.Validationf("missing Idempotency-Key"))
				return
			}
			if len(key) < 16 {
				h.writeError(w, r, domain.Validationf("invalid Idempotency-Key"))
				return
			}

			existing, err := idemp.Begin(r.Context(), key)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			if existing != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write(existing.Result)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if err := idemp.Complete(r.Context(), key, idempotency.Response{Status: status, Result: body.Bytes()}); err != nil {
				observability.LoggerFromContext(r.Context(), h.logger).WithError(err).Warn("idempotency store failed")
			}
		})
	}
}

type ScannerAuth interface {
	Login(ctx context.Context, username, password string) (operator.Session, error)
	Authenticate(ctx context.Context, token string) (string, error)
}

// ScannerAuthMiddleware admits only requests carrying a live scanner session
// as a Bearer token. The operator name is added to the request logger.
func (h *Handlers) ScannerAuthMiddleware(auth ScannerAuth) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := auth.Authenticate(r.Context(), bearerToken(r.Header.Get("Authorization")))
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			log := observability.LoggerFromContext(r.Context(), h.logger).WithField("operator", username)
			ctx := contextWithOperator(observability.ContextWithLogger(r.Context(), log), username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

type operatorKey struct{}

func contextWithOperator(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, operatorKey{}, username)
}

func operatorFromContext(ctx context.Context) string {
	username, _ := ctx.Value(operatorKey{}).(string)
	return username
}

type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error)
}

// RateLimitMiddleware limits each client IP to rate requests per minute under
// scope. A limiter error lets the request through.
func (h *Handlers) RateLimitMiddleware(rl Limiter, scope string, rate int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			ok, err := rl.Allow(r.Context(), scope+":ip:"+ip, rate, time.Minute)
			if err != nil {
				observability.LoggerFromContext(r.Context(), h.logger).WithError(err).Warn("rate limiter unavailable")
			} else if !ok {
				observability.RateLimitExceeded.Inc()
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "RATE_LIMITED", "detail": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := observability.Tracer("http").Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("request_id", middleware.GetReqID(ctx)),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
