package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/attestor/internal/identity"
)

// Headers the fronting gateway stamps after authenticating the caller.
// Requests arriving without them never reach a handler.
const (
	headerOrgID    = "X-Org-ID"
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// identityMiddleware resolves the caller's identity from gateway headers and
// stores it on the request context.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, err := uuid.Parse(r.Header.Get(headerOrgID))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Code: CodeUnauthorized, Message: "missing or invalid organization identity",
			})
			return
		}
		userID, err := uuid.Parse(r.Header.Get(headerUserID))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Code: CodeUnauthorized, Message: "missing or invalid user identity",
			})
			return
		}

		id := &identity.Identity{
			OrganizationID: orgID,
			UserID:         userID,
			Role:           r.Header.Get(headerUserRole),
		}
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
	})
}

// loggingMiddleware logs one line per request and feeds the request metrics.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		recordRequest(r.Method, routePattern(r), ww.Status(), elapsed)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed))
	})
}

// routePattern returns the chi route template (e.g. /api/v1/frameworks/{frameworkID}/controls)
// so metrics label cardinality stays bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
