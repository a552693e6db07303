// Package middleware provides HTTP middleware for the conversion API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docuforge/conversion-engine/internal/domain"
)

// Tenancy resolves the calling tenant and user from request headers and
// attaches a domain.TenantContext. Every /api/v1 route requires a tenant;
// requests without one are rejected before any handler runs.
//
// Header-based identity assumes a trusted gateway terminated authentication
// upstream, which is how the service is deployed.
func Tenancy(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantHeader := r.Header.Get("X-Tenant-ID")
			if tenantHeader == "" {
				if required {
					http.Error(w, `{"error":"missing X-Tenant-ID header"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			tenantID, err := uuid.Parse(tenantHeader)
			if err != nil {
				http.Error(w, `{"error":"malformed X-Tenant-ID header"}`, http.StatusBadRequest)
				return
			}

			tc := domain.TenantContext{TenantID: tenantID}
			if userHeader := r.Header.Get("X-User-ID"); userHeader != "" {
				userID, err := uuid.Parse(userHeader)
				if err != nil {
					http.Error(w, `{"error":"malformed X-User-ID header"}`, http.StatusBadRequest)
					return
				}
				tc.UserID = userID
			}

			next.ServeHTTP(w, r.WithContext(domain.WithTenant(r.Context(), tc)))
		})
	}
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-ID, X-User-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
