package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
	"github.com/zwj1kor/Agentic-sso/pkg/httpx"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

const (
	errCodeBackend    = "backend_error"
	errCodeConnection = "connection_error"
)

type LoginResponse struct {
	AuthURL string `json:"auth_url"`
}

type CallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	BackendURL     string `json:"backend_url"`
	ActiveSessions int    `json:"active_sessions"`
}

// Router serves the agent endpoints.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	agent *Agent
}

func NewRouter(a *Agent, logger *slog.Logger, corsOrigins []string) *Router {
	r := &Router{
		Mux:   http.NewServeMux(),
		agent: a,
	}
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(logger),
		httpx.Recover(),
		httpx.CORS(corsOrigins),
	}

	r.Mux.HandleFunc("GET /health", r.handleHealth)
	r.Mux.HandleFunc("POST /sso_login", r.handleLogin)
	r.Mux.HandleFunc("POST /sso_callback", r.handleCallback)
	r.Mux.HandleFunc("POST /sso_me", r.handleMe)
	r.Mux.HandleFunc("POST /sso_logout", r.handleLogout)

	// LLM clients reach the same session through MCP tools.
	server := NewMCPServer(a, logger, BuildVersion)
	r.Mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	active := 0
	if r.agent.Active() {
		active = 1
	}
	httpx.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Service:        "sso_agent",
		BackendURL:     r.agent.BackendURL,
		ActiveSessions: active,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	authURL, err := r.agent.Login(ctx)
	if err != nil {
		writeBackendError(ctx, w, "login", err)
		return
	}

	slogx.FromContext(ctx).InfoContext(ctx, "sso login initiated")
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{AuthURL: authURL})
}

func (r *Router) handleCallback(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body CallbackRequest
	if err := httpx.DecodeJSON(req, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "invalid JSON body")
		return
	}
	if body.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "missing code")
		return
	}

	if err := r.agent.Callback(ctx, body.Code, body.State); err != nil {
		if errors.Is(err, ErrLoginFailed) {
			slogx.FromContext(ctx).WarnContext(ctx, "sso callback rejected by broker")
			httpx.WriteError(w, http.StatusInternalServerError, errCodeBackend, "login failed")
			return
		}
		writeBackendError(ctx, w, "callback", err)
		return
	}

	slogx.FromContext(ctx).InfoContext(ctx, "sso session established")
	httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "OK"})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	me, err := r.agent.Me(ctx)
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) {
			slogx.FromContext(ctx).DebugContext(ctx, "not authenticated", "error", err)
			authsdk.ErrUnauthenticated.WriteError(w)
			return
		}
		writeBackendError(ctx, w, "me", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, me)
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if err := r.agent.Logout(ctx); err != nil {
		slogx.FromContext(ctx).ErrorContext(ctx, "sso logout failed, session cleared locally", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, errCodeConnection,
			"cannot reach backend (session cleared locally)")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "ok"})
}

// writeBackendError answers 500, telling a broker error reply apart from a
// broker that could not be reached.
func writeBackendError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) {
		slogx.FromContext(ctx).ErrorContext(ctx, "broker returned an error", "op", op, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, errCodeBackend, apiErr.Error())
		return
	}
	slogx.FromContext(ctx).ErrorContext(ctx, "broker unreachable", "op", op, "error", err)
	httpx.WriteError(w, http.StatusInternalServerError, errCodeConnection, "cannot reach backend")
}
