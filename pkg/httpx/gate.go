package httpx

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/session"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// Cookie names carrying session tokens.
const (
	CookieSession = string(session.OriginCredentials)
	CookieOAuth   = string(session.OriginOAuth)
)

// Outcome is what the Gate does with a request.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reasons attached to gate decisions, also used as API error codes.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonForbidden       = "forbidden"
	ReasonOnboarding      = "registration_incomplete"
	ReasonAlreadySignedIn = "already_authenticated"
	ReasonGateFailure     = "gate_failure"
)

// Decision is the result of evaluating one request.
type Decision struct {
	Outcome  Outcome
	Location string
	Reason   string
}

// Evaluate decides what happens to a request for target, the escaped path
// with an optional query exactly as sent (r.URL.RequestURI()). Access is
// decided on the decoded, cleaned path; target itself is only carried into
// the login callback. claims is nil when the request is unauthenticated. It
// is pure and does no I/O.
func Evaluate(target string, claims *jwtx.Claims, devHost bool) Decision {
	prefix := rbac.PrefixOf(target)

	if claims == nil {
		if prefix == "" {
			return Decision{Outcome: Allow}
		}
		return Decision{
			Outcome:  Redirect,
			Location: rbac.Resolve(rbac.RolePublic, rbac.Flags{}, target),
			Reason:   ReasonUnauthenticated,
		}
	}

	role := claims.Role
	if !rbac.IsAllowed(role, prefix) {
		return Decision{Outcome: Deny, Location: rbac.UnauthorizedPath, Reason: ReasonForbidden}
	}

	flags := rbac.Flags{
		Authenticated:        true,
		RegistrationComplete: claims.RegistrationComplete,
		Developer:            claims.Source == jwtx.SourceDeveloper,
		DevHost:              devHost,
	}

	// Developer sessions on a dev host skip onboarding, as in Resolve.
	bypass := flags.Developer && flags.DevHost
	if role == rbac.RoleParent && !claims.RegistrationComplete && !bypass && rbac.IsRoleArea(prefix) {
		return Decision{Outcome: Redirect, Location: rbac.OnboardingPath, Reason: ReasonOnboarding}
	}

	if p, ok := rbac.CleanPath(target); ok && strings.EqualFold(p, rbac.LoginPath) {
		return Decision{Outcome: Redirect, Location: rbac.Resolve(role, flags, rbac.LoginPath), Reason: ReasonAlreadySignedIn}
	}

	return Decision{Outcome: Allow}
}

// GateConfig wires the Gate.
type GateConfig struct {
	Verifier *session.Verifier
	DevHosts *DevHosts
}

// Gate is the edge middleware: it reconciles the request's session tokens,
// applies the access matrix and either redirects or hands the request on
// with the claims in its context. Anything unexpected fails closed: the
// request is treated as unauthenticated.
func Gate(cfg GateConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			claims, d, err := evaluateRequest(cfg, r)
			if err != nil {
				log.Error("gate failed closed", "error", err)
				claims = nil
				d = Evaluate(r.URL.RequestURI(), nil, false)
				if d.Outcome != Allow {
					d.Reason = ReasonGateFailure
				}
			}

			if d.Outcome != Allow {
				log.Info("gate decision",
					"outcome", d.Outcome.String(),
					"reason", d.Reason,
					"location", d.Location,
				)
				writeDecision(w, r, d)
				return
			}

			ctx := r.Context()
			if claims != nil {
				ctx = ContextWithClaims(ctx, *claims)
				ctx = slogx.WithClaims(ctx, *claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func evaluateRequest(cfg GateConfig, r *http.Request) (claims *jwtx.Claims, d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("httpx: gate panic: %v", rec)
		}
	}()

	if cfg.Verifier == nil {
		return nil, Decision{}, fmt.Errorf("httpx: gate has no verifier")
	}

	devHost := cfg.DevHosts.Match(r.Host)
	c, _, ok := session.Reconcile(cfg.Verifier, session.Options{AllowDeveloper: devHost}, Candidates(r)...)
	if ok {
		claims = &c
	}

	return claims, Evaluate(r.URL.RequestURI(), claims, devHost), nil
}

// Candidates collects every raw session token present on r.
func Candidates(r *http.Request) []session.Candidate {
	var out []session.Candidate
	if raw := BearerToken(r); raw != "" {
		out = append(out, session.Candidate{Origin: session.OriginBearer, Raw: raw})
	}
	if c, err := r.Cookie(CookieSession); err == nil && c.Value != "" {
		out = append(out, session.Candidate{Origin: session.OriginCredentials, Raw: c.Value})
	}
	if c, err := r.Cookie(CookieOAuth); err == nil && c.Value != "" {
		out = append(out, session.Candidate{Origin: session.OriginOAuth, Raw: c.Value})
	}
	return out
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}

// IsAPIPath reports whether the escaped path is served as JSON rather than
// pages.
func IsAPIPath(path string) bool {
	p, ok := rbac.CleanPath(path)
	if !ok {
		return false
	}
	p = strings.ToLower(p)
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

func writeDecision(w http.ResponseWriter, r *http.Request, d Decision) {
	if IsAPIPath(r.URL.EscapedPath()) {
		code := http.StatusForbidden
		desc := "You do not have access to this resource."
		switch d.Reason {
		case ReasonUnauthenticated, ReasonGateFailure:
			code = http.StatusUnauthorized
			desc = "Sign in to continue."
		case ReasonOnboarding:
			desc = "Complete registration to continue."
		}
		WriteJSON(w, code, ErrorResponse{Error: d.Reason, ErrorDescription: desc, RedirectTo: d.Location})
		return
	}

	NoCache(w)
	http.Redirect(w, r, d.Location, http.StatusFound)
}
