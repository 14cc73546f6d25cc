package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/service"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
	"github.com/zwj1kor/Agentic-sso/pkg/httpx"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

const unknownUserName = "Unknown User"

// AuthHandler serves the browser-facing login endpoints.
type AuthHandler struct {
	Flow   *service.AuthFlow
	Cookie CookieConfig

	// FrontendURL receives the browser after a successful login and
	// FailureURL after any failed one.
	FrontendURL string
	FailureURL  string
}

// HandleLogin godoc
//
//	@Summary		Start a login
//	@Description	Records a single-use login attempt and redirects the browser to the identity provider's authorization endpoint.
//	@Description	No cookie is set.
//	@Tags			Auth
//	@Success		302	{string}	string					"Redirect to the identity provider"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Login attempt could not be recorded"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited"
//	@Router			/auth/login [get]
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.Flow.Login(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).ErrorContext(r.Context(), "login start failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback godoc
//
//	@Summary		Complete a login
//	@Description	Consumes the login attempt named by state, redeems the code, validates the identity token and creates a session.
//	@Description	On success the session cookie is set and the browser is sent to the frontend.
//	@Description	Every failure redirects to the same failure destination without a cookie; the cause is only logged.
//	@Tags			Auth
//	@Param			state				query		string	false	"State issued by /auth/login"
//	@Param			code				query		string	false	"Authorization code"
//	@Param			error				query		string	false	"Provider error code"
//	@Param			error_description	query		string	false	"Provider error description"
//	@Success		302					{string}	string	"Redirect to the frontend or the failure destination"
//	@Router			/auth/callback [get]
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	res, err := h.Flow.Callback(ctx, service.CallbackRequest{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})

	httpx.NoCache(w)
	if err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "login failed",
			"reason", service.FailureReason(err),
			"error", err,
		)
		http.Redirect(w, r, h.FailureURL, http.StatusFound)
		return
	}

	h.Cookie.set(w, res.CookieValue)
	http.Redirect(w, r, h.FrontendURL, http.StatusFound)
}

// HandleMe godoc
//
//	@Summary		Current user
//	@Description	Returns the identity of the session named by the session cookie.
//	@Description	A missing, unreadable, unknown or expired session all yield the same 401.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.MeResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"unauthenticated"
//	@Router			/auth/me [get]
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	value := h.Cookie.value(r)

	sess, err := h.Flow.WhoAmI(ctx, value)
	if err != nil {
		switch {
		case value == "":
			slogx.FromContext(ctx).DebugContext(ctx, "unauthenticated", "error", err)
		case errors.Is(err, store.ErrNotFound),
			errors.Is(err, store.ErrExpired),
			errors.Is(err, service.ErrCookieMalformed),
			errors.Is(err, service.ErrCookieTampered):
			// The browser holds a cookie that no longer names a session.
			slogx.FromContext(ctx).DebugContext(ctx, "unauthenticated", "error", err)
			h.Cookie.clear(w)
		default:
			// The session may still be valid; keep the cookie for the next try.
			slogx.FromContext(ctx).ErrorContext(ctx, "session lookup failed", "error", err)
		}
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, meResponse(sess))
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Deletes the session named by the session cookie, if any, and always expires the cookie.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.StatusResponse	"status ok"
//	@Router			/auth/logout [post]
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Flow.Logout(ctx, h.Cookie.value(r)); err != nil {
		slogx.FromContext(ctx).ErrorContext(ctx, "logout failed to delete session", "error", err)
	}

	h.Cookie.clear(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "ok"})
}

func meResponse(sess domain.Session) authsdk.MeResponse {
	c := sess.Claims
	claims := c.Raw
	if claims == nil {
		claims = map[string]any{
			"sub":   c.Subject,
			"iss":   c.Issuer,
			"aud":   c.Audience,
			"exp":   c.ExpiresAt.Unix(),
			"iat":   c.IssuedAt.Unix(),
			"name":  c.Name,
			"email": c.Email,
		}
	}
	return authsdk.MeResponse{
		User: authsdk.UserInfo{
			Subject: c.Subject,
			Email:   c.Email,
			Name:    displayName(c.Name),
		},
		Claims:    claims,
		ExpiresAt: sess.ExpiresAt.UTC().Truncate(time.Second),
	}
}

// displayName falls back to a placeholder when the provider sent no name.
func displayName(name string) string {
	if name == "" {
		return unknownUserName
	}
	return name
}
