package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/portal-crm-backend/api/responses"
)

const devOrigin = "http://localhost:3000"

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsHeaders = []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader}
	// Browsers hide response headers from scripts unless they are listed.
	corsExposed = []string{requestIDHeader, ReplayedHeader, responses.RetryableHeader, "Location"}
)

// CORS applies the portal origin policy. With no origins configured only the
// local dev frontend is allowed.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{devOrigin}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   corsMethods,
		AllowedHeaders:   corsHeaders,
		ExposedHeaders:   corsExposed,
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
