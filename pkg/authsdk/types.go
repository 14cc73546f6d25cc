package authsdk

import "time"

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the JSON error body returned by the broker.
type ErrorResponse struct {
	// Error is a short machine readable code (e.g., "unauthenticated")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Session Types
// ============================================================================

// UserInfo is the display identity of the signed-in user.
type UserInfo struct {
	// Subject is the provider's stable user identifier
	Subject string `json:"sub"`

	// Email falls back to preferred_username, then upn, when the provider
	// issues no email claim
	Email string `json:"email,omitempty"`

	Name string `json:"name,omitempty"`
}

// MeResponse is returned by GET /auth/me for an authenticated session.
type MeResponse struct {
	User UserInfo `json:"user"`

	// Claims holds every claim of the identity token the session was
	// created from
	Claims map[string]any `json:"claims,omitempty"`

	// ExpiresAt is when the broker session ends. It does not move on access.
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponse is the body of simple acknowledgements such as logout.
type StatusResponse struct {
	Status string `json:"status"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /health and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Store indicates the session and login-attempt store status
	Store string `json:"store"`

	// SigningKeys indicates whether the provider's signing keys are loaded
	SigningKeys string `json:"signing_keys"`
}
