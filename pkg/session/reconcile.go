package session

import (
	"slices"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

// Origin is where a raw token was found on the request.
type Origin string

const (
	OriginBearer      Origin = "bearer"
	OriginCredentials Origin = "session-token"
	OriginOAuth       Origin = "oauth-session"
)

// Candidate is one identity source's view of the current session.
type Candidate struct {
	Origin Origin
	Raw    string
}

// Options tune Reconcile.
type Options struct {
	// AllowDeveloper keeps developer-source claims. Only set this for
	// requests whose host matched a dev-host pattern.
	AllowDeveloper bool

	// Sources restricts the result to claims from these identity sources.
	// Empty means any.
	Sources []jwtx.Source
}

// SourcesFor returns the identity sources served by the named provider:
// "credentials" covers developer sessions too, since both share a cookie.
func SourcesFor(provider string) ([]jwtx.Source, bool) {
	src, ok := jwtx.ParseSource(provider)
	if !ok {
		return nil, false
	}
	switch src {
	case jwtx.SourceOAuth:
		return []jwtx.Source{jwtx.SourceOAuth}, true
	default:
		return []jwtx.Source{jwtx.SourceCredentials, jwtx.SourceDeveloper}, true
	}
}

// accepts reports whether a token carrying src may arrive through origin.
// The OAuth cookie only carries OAuth sessions and the credentials cookie
// never does.
func (o Origin) accepts(src jwtx.Source) bool {
	switch o {
	case OriginOAuth:
		return src == jwtx.SourceOAuth
	case OriginCredentials:
		return src == jwtx.SourceCredentials || src == jwtx.SourceDeveloper
	default:
		return true
	}
}

// Reconcile verifies every candidate and returns the authoritative session:
// the valid claim issued most recently. Ties keep the earlier candidate. The
// boolean is false when no candidate survives, which callers treat as an
// unauthenticated request.
func Reconcile(v *Verifier, opts Options, candidates ...Candidate) (jwtx.Claims, Origin, bool) {
	var (
		best       jwtx.Claims
		bestOrigin Origin
		found      bool
	)

	for _, c := range candidates {
		claims, ok := v.Verify(c.Raw)
		if !ok {
			continue
		}
		if !c.Origin.accepts(claims.Source) {
			continue
		}
		if claims.Source == jwtx.SourceDeveloper && !opts.AllowDeveloper {
			continue
		}
		if len(opts.Sources) > 0 && !slices.Contains(opts.Sources, claims.Source) {
			continue
		}
		if !found || claims.IssuedAtTime().After(best.IssuedAtTime()) {
			best, bestOrigin, found = claims, c.Origin, true
		}
	}

	return best, bestOrigin, found
}
