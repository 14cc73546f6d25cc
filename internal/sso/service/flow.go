package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/zwj1kor/Agentic-sso/internal/sso/domain"
	"github.com/zwj1kor/Agentic-sso/internal/sso/oidc"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

var (
	// ErrProviderDenied is a callback carrying an error response from the
	// provider instead of a code.
	ErrProviderDenied = errors.New("provider returned an error")
	ErrMissingCode    = errors.New("callback without code")

	// ErrUnauthenticated is the single outcome of any whoami failure.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Provider is the part of the OIDC client the flow drives.
type Provider interface {
	AuthorizationURL(state, nonce, codeVerifier string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*oidc.TokenResponse, error)
}

type TokenValidator interface {
	Validate(ctx context.Context, rawIDToken, expectedNonce string) (*jwtx.IDClaims, error)
}

// AuthFlow runs login, callback, whoami and logout over the injected
// stores and provider. It keeps no state of its own.
type AuthFlow struct {
	States    *StateService
	Sessions  *SessionService
	Cookies   *CookieCodec
	Provider  Provider
	Validator TokenValidator
}

// CallbackRequest is what the provider redirected back with.
type CallbackRequest struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CallbackResult carries the new session and its sealed cookie value.
type CallbackResult struct {
	Session     domain.Session
	CookieValue string
}

// Login records a login attempt and returns the provider URL to send the
// browser to.
func (f *AuthFlow) Login(ctx context.Context) (string, error) {
	a, err := f.States.Issue(ctx)
	if err != nil {
		return "", err
	}
	slogx.FromContext(ctx).InfoContext(ctx, "login started",
		"state", slogx.Prefix(a.State, 8),
		"expires_at", a.ExpiresAt,
	)
	return f.Provider.AuthorizationURL(a.State, a.Nonce, a.CodeVerifier), nil
}

// Callback completes a login. No session exists unless every step
// succeeded. The returned error says which step failed and is meant for
// logs only; see FailureReason.
func (f *AuthFlow) Callback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	attempt, err := f.States.Consume(ctx, req.State)
	if err != nil {
		return nil, err
	}

	if req.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderDenied, req.Error, req.ErrorDescription)
	}
	if req.Code == "" {
		return nil, ErrMissingCode
	}

	tok, err := f.Provider.Exchange(ctx, req.Code, attempt.CodeVerifier)
	if err != nil {
		return nil, err
	}

	claims, err := f.Validator.Validate(ctx, tok.IDToken, attempt.Nonce)
	if err != nil {
		return nil, err
	}

	sess, err := f.Sessions.Create(ctx, domain.IdentityFromToken(claims), 0)
	if err != nil {
		return nil, err
	}

	value, err := f.Cookies.Encode(sess.ID)
	if err != nil {
		f.Sessions.Discard(ctx, sess.ID)
		return nil, err
	}

	slogx.FromContext(ctx).InfoContext(ctx, "login completed",
		"sub", sess.Claims.Subject,
		"session", slogx.Prefix(sess.IDHash, 8),
		"expires_at", sess.ExpiresAt,
	)
	return &CallbackResult{Session: sess, CookieValue: value}, nil
}

// WhoAmI resolves a cookie value to its live session. Every failure wraps
// ErrUnauthenticated.
func (f *AuthFlow) WhoAmI(ctx context.Context, cookieValue string) (domain.Session, error) {
	if cookieValue == "" {
		return domain.Session{}, fmt.Errorf("%w: no cookie", ErrUnauthenticated)
	}
	id, err := f.Cookies.Decode(cookieValue)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	sess, err := f.Sessions.Read(ctx, id)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return sess, nil
}

// Logout deletes the session behind cookieValue if there is one. Only a
// backing store failure is reported.
func (f *AuthFlow) Logout(ctx context.Context, cookieValue string) error {
	if cookieValue == "" {
		return nil
	}
	id, err := f.Cookies.Decode(cookieValue)
	if err != nil {
		slogx.FromContext(ctx).DebugContext(ctx, "logout with unreadable cookie", "error", err)
		return nil
	}
	if err := f.Sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// FailureReason maps a callback error to a short label for logs.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStateMismatch) && errors.Is(err, store.ErrExpired):
		return "state_expired"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrProviderDenied):
		return "provider_error"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, oidc.ErrExchangeFailed):
		return "exchange_failed"
	case errors.Is(err, jwtx.ErrExpired):
		return "token_expired"
	case errors.Is(err, jwtx.ErrInvalidClaims):
		return "invalid_claims"
	case errors.Is(err, jwtx.ErrInvalidSig),
		errors.Is(err, jwtx.ErrUnknownKID),
		errors.Is(err, jwtx.ErrMissingKID),
		errors.Is(err, jwtx.ErrKeyType),
		errors.Is(err, jwtx.ErrMalformed):
		return "invalid_signature"
	default:
		return "internal"
	}
}
