// Package agent is a small HTTP facade over the broker for clients that
// cannot hold a browser cookie themselves, such as a static page served from
// another origin or a tool runner. The agent keeps one broker session on
// behalf of its caller.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
)

// ErrLoginFailed is returned when the broker rejected a callback.
var ErrLoginFailed = errors.New("agent: login failed")

// Agent holds the broker session of a single user.
type Agent struct {
	BackendURL string
	Timeout    time.Duration

	mu     sync.Mutex
	client *authsdk.SDKClient
	active bool
}

func New(backendURL string, timeout time.Duration) *Agent {
	a := &Agent{BackendURL: backendURL, Timeout: timeout}
	a.client = a.newClient()
	return a
}

func (a *Agent) newClient() *authsdk.SDKClient {
	c := authsdk.NewSDKClient(a.BackendURL)
	if a.Timeout > 0 {
		c.HTTPClient.Timeout = a.Timeout
	}
	return c
}

func (a *Agent) current() *authsdk.SDKClient {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

// Active reports whether the agent holds a broker session.
func (a *Agent) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Login starts a broker login and returns the provider URL to open.
func (a *Agent) Login(ctx context.Context) (string, error) {
	return a.current().LoginURL(ctx)
}

// Callback replays the provider redirect to the broker with a fresh cookie
// jar. The held session is replaced only when the broker issued a new one.
func (a *Agent) Callback(ctx context.Context, code, state string) error {
	c := a.newClient()
	if _, err := c.Callback(ctx, code, state); err != nil {
		return err
	}
	if len(c.SessionCookies()) == 0 {
		return ErrLoginFailed
	}

	a.mu.Lock()
	a.client = c
	a.active = true
	a.mu.Unlock()
	return nil
}

// Me returns the identity of the held session.
func (a *Agent) Me(ctx context.Context) (*authsdk.MeResponse, error) {
	return a.current().Me(ctx)
}

// Logout ends the broker session. The local session is dropped even when
// the broker cannot be reached.
func (a *Agent) Logout(ctx context.Context) error {
	a.mu.Lock()
	c := a.client
	a.client = a.newClient()
	a.active = false
	a.mu.Unlock()

	return c.Logout(ctx)
}
