// Package api exposes the HTTP surface: the application workflow endpoints,
// technician search, health, and metrics.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"localpro-backend/internal/common/auth"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/metrics"
	"localpro-backend/internal/common/observability"
)

type contextKey string

const claimsContextKey contextKey = "authClaims"

// ClaimsFromContext returns the verified token claims set by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// Middleware bundles the auth guards and request instrumentation around the
// shared error writer. obs may be nil.
type Middleware struct {
	verifier *auth.Verifier
	errs     *errors.HTTPHandler
	obs      *observability.Observability
}

func NewMiddleware(verifier *auth.Verifier, errs *errors.HTTPHandler, obs *observability.Observability) *Middleware {
	return &Middleware{verifier: verifier, errs: errs, obs: obs}
}

// RequireAuth verifies the bearer token and stores the claims in the
// request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyAuthorizationHeader(r.Header.Get("Authorization"))
		if err != nil {
			m.errs.WriteError(w, r, errors.NewUnauthorizedError(err.Error()))
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin allows only admin tokens through. Must run after RequireAuth.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			m.errs.WriteError(w, r, errors.NewUnauthorizedError("missing authentication"))
			return
		}
		if claims.Role != auth.RoleAdmin {
			m.errs.WriteError(w, r, errors.NewForbiddenError("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Metrics records request counts, durations, and in-flight gauge per chi
// route pattern.
func (m *Middleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(ww.Status())
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		if m.obs != nil {
			m.obs.RecordRequest(r.Context(), route, status)
			m.obs.RecordRequestDuration(r.Context(), elapsed, route)
		}
	})
}
