package authsdk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

// Defaults for ReconcilerConfig.
const (
	DefaultLoadingTimeout = 10 * time.Second
	DefaultDebounce       = 300 * time.Millisecond
)

// State is where the Reconciler is for the current navigation.
type State int

const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
	// StateRedirected is terminal until the next Mount.
	StateRedirected
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRedirected:
		return "redirected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source is one identity source's view of the session.
type Source interface {
	Fetch(ctx context.Context) (SessionResponse, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (SessionResponse, error)

func (f SourceFunc) Fetch(ctx context.Context) (SessionResponse, error) { return f(ctx) }

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	// Sources are queried on every check; the authenticated session issued
	// most recently wins.
	Sources []Source

	// Navigate moves the client to location. It is called at most once per
	// Mount.
	Navigate func(location string)

	LoadingTimeout time.Duration
	Debounce       time.Duration

	// DevHost reports that the client runs on a developer host.
	DevHost bool

	// OnChange, if set, receives every state change.
	OnChange func(Snapshot)
}

// Snapshot is a copy of the Reconciler's state.
type Snapshot struct {
	State   State
	Path    string
	Session *SessionResponse
}

// Reconciler keeps a client's idea of the session in step with the gate.
// It is safe for concurrent use.
type Reconciler struct {
	cfg ReconcilerConfig

	mu        sync.Mutex
	ctx       context.Context
	state     State
	path      string
	session   *SessionResponse
	seq       uint64 // newest issued check
	mount     uint64 // current navigation
	navigated bool

	loadingTimer  *time.Timer
	debounceTimer *time.Timer
}

// NewReconciler returns an idle Reconciler; call Mount to start it.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.LoadingTimeout <= 0 {
		cfg.LoadingTimeout = DefaultLoadingTimeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Reconciler{cfg: cfg, state: StateLoading}
}

// Mount starts a navigation to path: the state goes back to loading, every
// source is queried and the loading timeout is armed.
func (r *Reconciler) Mount(ctx context.Context, path string) {
	r.mu.Lock()
	r.stopTimersLocked()
	r.mount++
	m := r.mount
	r.ctx = ctx
	r.path = path
	r.state = StateLoading
	r.navigated = false
	r.loadingTimer = time.AfterFunc(r.cfg.LoadingTimeout, func() { r.onTimeout(m) })
	r.seq++
	n := r.seq
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	go r.check(ctx, n)
}

// Signal reports an out-of-band token change, e.g. another tab signing in
// or out. Signals within the debounce window collapse into one re-check.
func (r *Reconciler) Signal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil || r.state == StateRedirected {
		return
	}
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	m := r.mount
	r.debounceTimer = time.AfterFunc(r.cfg.Debounce, func() { r.recheck(m) })
}

// Close stops all timers. Checks still in flight are discarded.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimersLocked()
	r.seq++
	r.mount++
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) recheck(m uint64) {
	r.mu.Lock()
	if m != r.mount || r.state == StateRedirected {
		r.mu.Unlock()
		return
	}
	r.seq++
	n := r.seq
	ctx := r.ctx
	r.mu.Unlock()

	r.check(ctx, n)
}

type fetchResult struct {
	resp SessionResponse
	err  error
}

func (r *Reconciler) check(ctx context.Context, n uint64) {
	results := make([]fetchResult, len(r.cfg.Sources))

	var wg sync.WaitGroup
	for i, src := range r.cfg.Sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := src.Fetch(ctx)
			results[i] = fetchResult{resp: resp, err: err}
		}()
	}
	wg.Wait()

	var (
		best   *SessionResponse
		failed bool
	)
	for _, res := range results {
		if res.err != nil {
			failed = true
			continue
		}
		if !res.resp.Authenticated {
			continue
		}
		if best == nil || res.resp.IssuedAt > best.IssuedAt {
			s := res.resp
			best = &s
		}
	}

	r.apply(n, best, failed)
}

// apply folds one check into the state. Only the newest check counts.
func (r *Reconciler) apply(n uint64, best *SessionResponse, failed bool) {
	r.mu.Lock()

	if n != r.seq || r.state == StateRedirected {
		r.mu.Unlock()
		return
	}

	var nav string
	switch {
	case failed && (best == nil || r.state != StateLoading):
		// Keep the last-known state. A partial answer only settles a
		// navigation that hasn't resolved yet.
		r.mu.Unlock()
		return

	case best != nil:
		r.session = best
		r.state = StateAuthenticated
		r.stopLoadingLocked()
		nav = r.roleRedirectLocked()

	default:
		r.session = nil
		r.state = StateUnauthenticated
		r.stopLoadingLocked()
		if rbac.RequiresAuth(pathOnly(r.path)) {
			nav = rbac.LoginRedirect(r.path)
		}
	}

	nav = r.redirectLocked(nav)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	r.navigate(nav)
}

func (r *Reconciler) onTimeout(m uint64) {
	r.mu.Lock()

	if m != r.mount || r.state != StateLoading {
		r.mu.Unlock()
		return
	}

	// Late answers to checks issued before the timeout are ignored.
	r.seq++
	r.session = nil
	r.state = StateUnauthenticated

	var nav string
	if rbac.RequiresAuth(pathOnly(r.path)) {
		nav = rbac.LoginRedirect(r.path)
	}
	nav = r.redirectLocked(nav)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	r.navigate(nav)
}

// roleRedirectLocked returns where an authenticated session must go when
// the current path isn't for it.
func (r *Reconciler) roleRedirectLocked() string {
	s := r.session
	role := rbac.ParseRole(string(s.Role))
	prefix := rbac.PrefixOf(pathOnly(r.path))

	needsOnboarding := role == rbac.RoleParent && !s.RegistrationComplete && rbac.IsRoleArea(prefix)
	if rbac.IsAllowed(role, prefix) && !needsOnboarding {
		return ""
	}

	target := rbac.Resolve(role, rbac.Flags{
		Authenticated:        true,
		RegistrationComplete: s.RegistrationComplete,
		Developer:            s.Source == "developer",
		DevHost:              r.cfg.DevHost,
	}, r.path)
	if target == r.path {
		return ""
	}
	return target
}

// redirectLocked moves to StateRedirected for a non-empty target. It
// returns "" when this navigation has already redirected.
func (r *Reconciler) redirectLocked(target string) string {
	if target == "" || r.navigated {
		return ""
	}
	r.navigated = true
	r.state = StateRedirected
	r.stopTimersLocked()
	return target
}

func (r *Reconciler) navigate(target string) {
	if target != "" && r.cfg.Navigate != nil {
		r.cfg.Navigate(target)
	}
}

func (r *Reconciler) notify(s Snapshot) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(s)
	}
}

func (r *Reconciler) snapshotLocked() Snapshot {
	snap := Snapshot{State: r.state, Path: r.path}
	if r.session != nil {
		s := *r.session
		snap.Session = &s
	}
	return snap
}

func (r *Reconciler) stopLoadingLocked() {
	if r.loadingTimer != nil {
		r.loadingTimer.Stop()
		r.loadingTimer = nil
	}
}

func (r *Reconciler) stopTimersLocked() {
	r.stopLoadingLocked()
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
		r.debounceTimer = nil
	}
}

func pathOnly(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}
