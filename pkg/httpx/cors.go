package httpx

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows credentialed requests from the listed origins. The session
// cookie only reaches the broker from a browser app on another origin when
// credentials are allowed, so wildcards are never accepted. With no origins
// the middleware is a no-op.
func CORS(origins []string) Middleware {
	var allowed []string
	for _, o := range origins {
		if o != "" && o != "*" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
