package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/schoolgate/internal/gate/domain"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/idx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/ratelimit"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// SwitchBucket is the rate-limit bucket for role switches.
const SwitchBucket = "role-switch"

// MaxReasonLen caps the free-text reason kept in tokens and the audit log.
const MaxReasonLen = 256

var (
	ErrRateLimited      = errors.New("rate_limited")
	ErrNotMaster        = errors.New("not_master")
	ErrSourceNotAllowed = errors.New("source_not_allowed")
	ErrInvalidTarget    = errors.New("invalid_target")
	ErrNotImpersonating = errors.New("not_impersonating")
	ErrAuditUnavailable = errors.New("audit_unavailable")
)

// RateLimitedError carries how long the actor has to wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Meta describes the client that made a switch or revert call.
type Meta struct {
	SourceIP  string
	UserAgent string
}

// Issued is a freshly signed session token and the claims inside it.
type Issued struct {
	Token  string
	Claims jwtx.Claims
}

// SwitchStatus is the impersonation view of a session.
type SwitchStatus struct {
	CurrentRole  rbac.Role   `json:"currentRole"`
	HasSwitched  bool        `json:"hasSwitched"`
	OriginalRole rbac.Role   `json:"originalRole,omitempty"`
	CanSwitch    bool        `json:"canSwitch"`
	ValidRoles   []rbac.Role `json:"validRoles"`
	Reason       string      `json:"reason,omitempty"`
	SwitchedAt   *time.Time  `json:"switchedAt,omitempty"`
}

// ImpersonationService lets a MASTER session act as another role. Every
// attempt past the rate limiter leaves an audit entry, and a granted switch
// is only signed once its entry is stored.
type ImpersonationService struct {
	Store   store.Store
	Signer  jwtx.Signer
	Limiter ratelimit.Limiter
	Now     func() time.Time
}

func (s *ImpersonationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// principalRole is the role of the person behind the session, which differs
// from Claims.Role while a switch is active.
func principalRole(c jwtx.Claims) rbac.Role {
	if c.Impersonating() {
		return rbac.ParseRole(string(c.Impersonation.OriginalRole))
	}
	return rbac.ParseRole(string(c.Role))
}

// SwitchRole mints a token for current acting as target.
func (s *ImpersonationService) SwitchRole(
	ctx context.Context,
	current jwtx.Claims,
	target rbac.Role,
	reason string,
	meta Meta,
) (Issued, error) {
	l := slogx.FromContext(ctx)
	now := s.now()
	reason = trimReason(reason)

	if s.Limiter != nil {
		d := s.Limiter.Allow(ctx, ratelimit.Key(SwitchBucket, current.Subject))
		if !d.Allowed {
			l.Warn("role switch rate limited",
				slog.String("actor", current.Subject),
				slog.Int("count", d.Count),
				slog.Int("limit", d.Limit),
			)
			return Issued{}, &RateLimitedError{RetryAfter: d.RetryAfter(now)}
		}
	}

	entry := domain.AuditEntry{
		Action:    domain.AuditActionSwitch,
		ActorID:   current.Subject,
		ActorRole: principalRole(current),
		FromRole:  current.Role,
		ToRole:    target,
		Reason:    reason,
		Timestamp: now,
		SourceIP:  meta.SourceIP,
		UserAgent: meta.UserAgent,
	}

	var denial error
	switch {
	case principalRole(current) != rbac.RoleMaster:
		denial = ErrNotMaster
	case !current.Source.CanMutate():
		denial = ErrSourceNotAllowed
	case !rbac.IsSwitchTarget(target):
		denial = ErrInvalidTarget
	}
	if denial != nil {
		s.deny(ctx, entry, denial)
		return Issued{}, denial
	}

	entry.ID = idx.NewAt(now).String()
	entry.Outcome = domain.AuditGranted
	if err := s.Store.AuditEntries().Append(ctx, entry); err != nil {
		l.Error("failed to write role switch audit entry", "error", err)
		return Issued{}, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}

	next := current
	next.Role = target
	next.Impersonation = &jwtx.Impersonation{
		Active:       true,
		OriginalRole: rbac.RoleMaster,
		SwitchedAt:   jwt.NewNumericDate(now),
		Reason:       reason,
	}
	refresh(&next, now)

	token, err := s.Signer.Sign(next)
	if err != nil {
		return Issued{}, err
	}

	l.Info("role switched",
		slog.String("actor", current.Subject),
		slog.String("from", string(current.Role)),
		slog.String("to", string(target)),
		slog.String("audit_id", entry.ID),
	)
	return Issued{Token: token, Claims: next}, nil
}

// Revert restores the MASTER role on an impersonating session. It is not
// rate limited.
func (s *ImpersonationService) Revert(ctx context.Context, current jwtx.Claims, meta Meta) (Issued, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	entry := domain.AuditEntry{
		Action:    domain.AuditActionRevert,
		ActorID:   current.Subject,
		ActorRole: principalRole(current),
		FromRole:  current.Role,
		ToRole:    rbac.RoleMaster,
		Timestamp: now,
		SourceIP:  meta.SourceIP,
		UserAgent: meta.UserAgent,
	}

	if !current.Impersonating() {
		s.deny(ctx, entry, ErrNotImpersonating)
		return Issued{}, ErrNotImpersonating
	}
	entry.Reason = current.Impersonation.Reason

	entry.ID = idx.NewAt(now).String()
	entry.Outcome = domain.AuditGranted
	if err := s.Store.AuditEntries().Append(ctx, entry); err != nil {
		l.Error("failed to write role revert audit entry", "error", err)
		return Issued{}, fmt.Errorf("%w: %v", ErrAuditUnavailable, err)
	}

	next := current
	next.Role = rbac.RoleMaster
	next.Impersonation = nil
	refresh(&next, now)

	token, err := s.Signer.Sign(next)
	if err != nil {
		return Issued{}, err
	}

	l.Info("role reverted",
		slog.String("actor", current.Subject),
		slog.String("from", string(current.Role)),
		slog.String("audit_id", entry.ID),
	)
	return Issued{Token: token, Claims: next}, nil
}

// Status reports the impersonation state of current.
func (s *ImpersonationService) Status(current jwtx.Claims) SwitchStatus {
	st := SwitchStatus{
		CurrentRole: rbac.ParseRole(string(current.Role)),
		HasSwitched: current.Impersonating(),
		CanSwitch:   principalRole(current) == rbac.RoleMaster && current.Source.CanMutate(),
		ValidRoles:  []rbac.Role{},
	}
	if st.CanSwitch {
		st.ValidRoles = append(st.ValidRoles, rbac.SwitchTargets...)
	}
	if st.HasSwitched {
		st.OriginalRole = principalRole(current)
		st.Reason = current.Impersonation.Reason
		if at := current.Impersonation.SwitchedAt; at != nil {
			t := at.Time
			st.SwitchedAt = &t
		}
	}
	return st
}

// deny records a refused attempt. The caller's error wins over a failed
// audit write.
func (s *ImpersonationService) deny(ctx context.Context, entry domain.AuditEntry, reason error) {
	entry.ID = idx.NewAt(entry.Timestamp).String()
	entry.Outcome = domain.AuditDenied
	entry.DenyReason = reason.Error()

	l := slogx.FromContext(ctx)
	if err := s.Store.AuditEntries().Append(ctx, entry); err != nil {
		l.Error("failed to write denied audit entry", "error", err, "action", string(entry.Action))
	}
	l.Warn("role change denied",
		slog.String("action", string(entry.Action)),
		slog.String("actor", entry.ActorID),
		slog.String("actor_role", string(entry.ActorRole)),
		slog.String("deny_reason", entry.DenyReason),
	)
}

// refresh stamps derived claims with a new iat and jti. exp is kept so a
// derived token never outlives the one it came from.
func refresh(c *jwtx.Claims, now time.Time) {
	c.IssuedAt = jwt.NewNumericDate(now)
	c.NotBefore = jwt.NewNumericDate(now)
	c.ID = jwtx.NewJTI()
}

func trimReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		reason = string([]rune(reason)[:MaxReasonLen])
	}
	return reason
}
