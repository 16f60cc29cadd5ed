package domain

import (
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

type AuditAction string

const (
	AuditActionSwitch AuditAction = "switch"
	AuditActionRevert AuditAction = "revert"
)

type AuditOutcome string

const (
	AuditGranted AuditOutcome = "granted"
	AuditDenied  AuditOutcome = "denied"
)

// AuditEntry records one role switch or revert attempt. Entries are written
// once and never changed.
type AuditEntry struct {
	ID         string
	Action     AuditAction
	Outcome    AuditOutcome
	ActorID    string
	ActorRole  rbac.Role
	FromRole   rbac.Role
	ToRole     rbac.Role
	Reason     string
	DenyReason string
	Timestamp  time.Time
	SourceIP   string
	UserAgent  string
}
