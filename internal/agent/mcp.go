package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
	"github.com/zwj1kor/Agentic-sso/pkg/httpx"
)

// MCP tool names. They match the agent's HTTP routes.
const (
	ToolLogin    = "sso_login"
	ToolCallback = "sso_callback"
	ToolMe       = "sso_me"
	ToolLogout   = "sso_logout"
)

type noArgs struct{}

// CallbackArgs are the sso_callback tool arguments.
type CallbackArgs struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

type mcpTools struct {
	agent  *Agent
	logger *slog.Logger
}

// NewMCPServer exposes the agent's login operations as MCP tools so an LLM
// client can drive a login and read the resulting identity.
func NewMCPServer(a *Agent, logger *slog.Logger, version string) *mcp.Server {
	t := &mcpTools{agent: a, logger: logger}

	server := mcp.NewServer(&mcp.Implementation{Name: "sso-mcp", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolLogin,
		Description: "Start an SSO login and return the identity provider URL the user must open.",
	}, t.login)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolCallback,
		Description: "Finish an SSO login with the code and state the identity provider redirected back with.",
	}, t.callback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolMe,
		Description: "Return the signed-in user and identity token claims.",
	}, t.me)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolLogout,
		Description: "End the SSO session held by this server.",
	}, t.logout)
	return server
}

func (t *mcpTools) login(ctx context.Context, _ *mcp.ServerRequest[*mcp.CallToolParamsFor[noArgs]]) (*mcp.CallToolResultFor[any], error) {
	authURL, err := t.agent.Login(ctx)
	if err != nil {
		return t.backendError(ctx, ToolLogin, err), nil
	}
	t.logger.InfoContext(ctx, "sso login initiated", "tool", ToolLogin)
	return toolResult(LoginResponse{AuthURL: authURL}), nil
}

func (t *mcpTools) callback(ctx context.Context, req *mcp.ServerRequest[*mcp.CallToolParamsFor[CallbackArgs]]) (*mcp.CallToolResultFor[any], error) {
	args := req.Params.Arguments
	if args.Code == "" {
		return toolError(authsdk.ErrorCodeInvalidRequest, "missing code"), nil
	}

	if err := t.agent.Callback(ctx, args.Code, args.State); err != nil {
		if errors.Is(err, ErrLoginFailed) {
			t.logger.WarnContext(ctx, "sso callback rejected by broker", "tool", ToolCallback)
			return toolError(errCodeBackend, "login failed"), nil
		}
		return t.backendError(ctx, ToolCallback, err), nil
	}

	t.logger.InfoContext(ctx, "sso session established", "tool", ToolCallback)
	return toolResult(authsdk.StatusResponse{Status: "OK"}), nil
}

func (t *mcpTools) me(ctx context.Context, _ *mcp.ServerRequest[*mcp.CallToolParamsFor[noArgs]]) (*mcp.CallToolResultFor[any], error) {
	me, err := t.agent.Me(ctx)
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) {
			t.logger.DebugContext(ctx, "not authenticated", "tool", ToolMe, "error", err)
			return toolError(authsdk.ErrorCodeUnauthenticated, "not authenticated"), nil
		}
		return t.backendError(ctx, ToolMe, err), nil
	}
	return toolResult(me), nil
}

func (t *mcpTools) logout(ctx context.Context, _ *mcp.ServerRequest[*mcp.CallToolParamsFor[noArgs]]) (*mcp.CallToolResultFor[any], error) {
	if err := t.agent.Logout(ctx); err != nil {
		t.logger.ErrorContext(ctx, "sso logout failed, session cleared locally", "tool", ToolLogout, "error", err)
		return toolError(errCodeConnection, "cannot reach backend (session cleared locally)"), nil
	}
	return toolResult(authsdk.StatusResponse{Status: "ok"}), nil
}

func (t *mcpTools) backendError(ctx context.Context, tool string, err error) *mcp.CallToolResultFor[any] {
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) {
		t.logger.ErrorContext(ctx, "broker returned an error", "tool", tool, "error", err)
		return toolError(errCodeBackend, apiErr.Error())
	}
	t.logger.ErrorContext(ctx, "broker unreachable", "tool", tool, "error", err)
	return toolError(errCodeConnection, "cannot reach backend")
}

// toolResult carries v both as structured content and as JSON text for
// clients that only read text.
func toolResult(v any) *mcp.CallToolResultFor[any] {
	raw, err := json.Marshal(v)
	if err != nil {
		return toolError(errCodeBackend, err.Error())
	}
	var structured map[string]any
	_ = json.Unmarshal(raw, &structured)
	return &mcp.CallToolResultFor[any]{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(raw)}},
		StructuredContent: structured,
	}
}

func toolError(code, desc string) *mcp.CallToolResultFor[any] {
	res := toolResult(httpx.ErrorResponse{Error: code, ErrorDescription: desc})
	res.IsError = true
	return res
}
