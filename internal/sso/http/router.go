package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/pkg/httpx"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"

	_ "github.com/zwj1kor/Agentic-sso/api/sso" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         jwtx.KeySource
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	rateLimits   httpx.RateLimits

	AuthHandler *AuthHandler
}

func NewRouter(
	keys jwtx.KeySource,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	limits httpx.RateLimits,
	corsOrigins []string,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		rateLimits:   limits,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.CORS(corsOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()

	r.Mux.Handle("GET /swagger/", httpx.Chain(httpSwagger.Handler(),
		httpx.RateLimitByIP(r.rateLimits.Public),
	))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Agentic SSO Broker API
//	@version		0.1.0
//	@description	OpenID Connect login broker. The broker runs the authorization code flow with PKCE against the upstream identity provider,
//	@description	validates the identity token and keeps the result as a server-side session referenced by an encrypted HTTP-only cookie.
//
//	@contact.name	Agentic SSO maintainers
//	@contact.url	https://github.com/zwj1kor/Agentic-sso
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8000
//	@BasePath		/
//
//	@schemes		http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := r.AuthHandler

	// Login and callback each cost the identity provider a round trip.
	loginLimit := httpx.RateLimitByIP(r.rateLimits.Login)
	r.Mux.Handle("GET /auth/login", httpx.Chain(http.HandlerFunc(h.HandleLogin), loginLimit))
	r.Mux.Handle("GET /auth/callback", httpx.Chain(http.HandlerFunc(h.HandleCallback), loginLimit))

	sessionLimit := httpx.RateLimitByIP(r.rateLimits.Session)
	r.Mux.Handle("GET /auth/me", httpx.Chain(http.HandlerFunc(h.HandleMe), sessionLimit))
	r.Mux.Handle("POST /auth/logout", httpx.Chain(http.HandlerFunc(h.HandleLogout), sessionLimit))
}

func (r *Router) registerSystem() {
	publicLimit := httpx.RateLimitByIP(r.rateLimits.Public)
	r.Mux.Handle("GET /health",
		httpx.Chain(HealthHandler(r.startTime, r.buildVersion), publicLimit),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys), publicLimit),
	)
}
