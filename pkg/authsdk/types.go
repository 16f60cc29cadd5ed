package authsdk

import (
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the JSON error envelope written by the gate. RedirectTo
// is set on gate denials for /api paths.
type ErrorResponse = httpx.ErrorResponse

// ============================================================================
// Session Types
// ============================================================================

// LoginResponse is returned by the login, dev-login and OAuth exchange
// endpoints. The token is also set as a cookie.
type LoginResponse struct {
	// Token is the signed session token
	Token string `json:"token"`

	// Source is the identity source that issued the session
	Source string `json:"source"`

	// Role is the session role
	Role rbac.Role `json:"role"`

	// ExpiresAt is the token expiry as unix seconds
	ExpiresAt int64 `json:"expiresAt"`

	// RedirectTo is where the client should land after signing in
	RedirectTo string `json:"redirectTo"`
}

// ImpersonationInfo mirrors the impersonation block of a session.
type ImpersonationInfo struct {
	Active       bool      `json:"active"`
	OriginalRole rbac.Role `json:"originalRole"`
	SwitchedAt   int64     `json:"switchedAt,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// SessionResponse is the session view of one identity source, or of the
// reconciled request when no source was asked for.
type SessionResponse struct {
	Authenticated        bool               `json:"authenticated"`
	Subject              string             `json:"sub,omitempty"`
	Email                string             `json:"email,omitempty"`
	Name                 string             `json:"name,omitempty"`
	Role                 rbac.Role          `json:"role,omitempty"`
	RegistrationComplete bool               `json:"registrationComplete"`
	Source               string             `json:"source,omitempty"`
	InstitutionID        string             `json:"institutionId,omitempty"`
	IssuedAt             int64              `json:"issuedAt,omitempty"`
	ExpiresAt            int64              `json:"expiresAt,omitempty"`
	Impersonation        *ImpersonationInfo `json:"impersonation,omitempty"`

	// Home is the landing page for the session role
	Home string `json:"home,omitempty"`

	// Reissued is true when the gate re-signed the session because the
	// identity store had changed
	Reissued bool `json:"reissued,omitempty"`
}

// IssuedAtTime returns IssuedAt as a time.
func (s SessionResponse) IssuedAtTime() time.Time {
	if s.IssuedAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.IssuedAt, 0)
}

// ============================================================================
// Impersonation Types
// ============================================================================

// SwitchRoleRequest asks to act as another role.
type SwitchRoleRequest struct {
	// TargetRole must be ADMIN, TEACHER or PARENT
	TargetRole rbac.Role `json:"targetRole"`

	// Reason is kept in the audit log
	Reason string `json:"reason,omitempty"`
}

// SwitchRoleResponse is returned by switch-role and revert-role.
type SwitchRoleResponse struct {
	Token       string    `json:"token"`
	CurrentRole rbac.Role `json:"currentRole"`
	RedirectTo  string    `json:"redirectTo"`
}

// SwitchStatus describes the impersonation state of a session.
type SwitchStatus struct {
	CurrentRole  rbac.Role   `json:"currentRole"`
	HasSwitched  bool        `json:"hasSwitched"`
	OriginalRole rbac.Role   `json:"originalRole,omitempty"`
	CanSwitch    bool        `json:"canSwitch"`
	ValidRoles   []rbac.Role `json:"validRoles"`
	Reason       string      `json:"reason,omitempty"`
	SwitchedAt   *time.Time  `json:"switchedAt,omitempty"`
}

// ============================================================================
// Audit Types
// ============================================================================

// AuditEntry is one role switch or revert attempt.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	ActorID    string    `json:"actorId"`
	ActorRole  rbac.Role `json:"actorRole"`
	FromRole   rbac.Role `json:"fromRole,omitempty"`
	ToRole     rbac.Role `json:"toRole,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DenyReason string    `json:"denyReason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	SourceIP   string    `json:"sourceIp,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}

// AuditListResponse is a page of audit entries, newest first. NextCursor is
// passed back as "before" to fetch the next page.
type AuditListResponse struct {
	Entries    []AuditEntry `json:"entries"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// AuditQuery filters an audit listing.
type AuditQuery struct {
	ActorID string
	Action  string
	Before  string
	Limit   int
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each critical dependency.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	OAuth    string `json:"oauth,omitempty"`
}
