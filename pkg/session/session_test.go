package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/session"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func mint(t *testing.T, src jwtx.Source, role rbac.Role, issued time.Time) string {
	t.Helper()
	signer, err := jwtx.NewSignerHS256("gate", secret)
	require.NoError(t, err)
	token, err := signer.Sign(jwtx.NewSessionClaims(jwtx.SessionParams{
		Subject:              "u-" + string(src),
		Role:                 role,
		RegistrationComplete: true,
		Source:               src,
	}, "", time.Hour, issued))
	require.NoError(t, err)
	return token
}

func newVerifier() *session.Verifier {
	return session.NewVerifier(jwtx.NewCommonHS256(secret, jwtx.VerifyOptions{}))
}

func TestVerify(t *testing.T) {
	t.Parallel()
	v := newVerifier()

	t.Run("valid", func(t *testing.T) {
		c, ok := v.Verify(mint(t, jwtx.SourceCredentials, rbac.RoleTeacher, time.Now()))
		require.True(t, ok)
		require.Equal(t, rbac.RoleTeacher, c.Role)
	})

	t.Run("expired is absent", func(t *testing.T) {
		_, ok := v.Verify(mint(t, jwtx.SourceCredentials, rbac.RoleTeacher, time.Now().Add(-2*time.Hour)))
		require.False(t, ok)
	})

	t.Run("garbage is absent", func(t *testing.T) {
		_, ok := v.Verify("abc")
		require.False(t, ok)
	})

	t.Run("empty is absent", func(t *testing.T) {
		_, ok := v.Verify("  ")
		require.False(t, ok)
	})

	t.Run("nil verifier is absent", func(t *testing.T) {
		var nilV *session.Verifier
		_, ok := nilV.Verify(mint(t, jwtx.SourceCredentials, rbac.RoleTeacher, time.Now()))
		require.False(t, ok)

		_, ok = session.NewVerifier(nil).Verify("x")
		require.False(t, ok)
	})
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	v := newVerifier()
	now := time.Now()

	t.Run("most recently issued wins", func(t *testing.T) {
		older := mint(t, jwtx.SourceCredentials, rbac.RoleAdmin, now.Add(-10*time.Minute))
		newer := mint(t, jwtx.SourceOAuth, rbac.RoleTeacher, now)

		c, origin, ok := session.Reconcile(v, session.Options{},
			session.Candidate{Origin: session.OriginCredentials, Raw: older},
			session.Candidate{Origin: session.OriginOAuth, Raw: newer},
		)
		require.True(t, ok)
		require.Equal(t, session.OriginOAuth, origin)
		require.Equal(t, rbac.RoleTeacher, c.Role)

		// Order of candidates does not matter.
		c, _, ok = session.Reconcile(v, session.Options{},
			session.Candidate{Origin: session.OriginOAuth, Raw: newer},
			session.Candidate{Origin: session.OriginCredentials, Raw: older},
		)
		require.True(t, ok)
		require.Equal(t, rbac.RoleTeacher, c.Role)
	})

	t.Run("invalid candidates skipped", func(t *testing.T) {
		good := mint(t, jwtx.SourceCredentials, rbac.RoleParent, now.Add(-time.Minute))
		c, _, ok := session.Reconcile(v, session.Options{},
			session.Candidate{Origin: session.OriginBearer, Raw: "junk"},
			session.Candidate{Origin: session.OriginCredentials, Raw: good},
		)
		require.True(t, ok)
		require.Equal(t, rbac.RoleParent, c.Role)
	})

	t.Run("nothing valid is absent", func(t *testing.T) {
		_, _, ok := session.Reconcile(v, session.Options{},
			session.Candidate{Origin: session.OriginBearer, Raw: ""},
		)
		require.False(t, ok)
	})

	t.Run("source must match cookie", func(t *testing.T) {
		creds := mint(t, jwtx.SourceCredentials, rbac.RoleAdmin, now)
		_, _, ok := session.Reconcile(v, session.Options{},
			session.Candidate{Origin: session.OriginOAuth, Raw: creds},
		)
		require.False(t, ok)
	})

	t.Run("developer dropped unless allowed", func(t *testing.T) {
		dev := mint(t, jwtx.SourceDeveloper, rbac.RoleMaster, now)
		cand := session.Candidate{Origin: session.OriginCredentials, Raw: dev}

		_, _, ok := session.Reconcile(v, session.Options{}, cand)
		require.False(t, ok)

		c, _, ok := session.Reconcile(v, session.Options{AllowDeveloper: true}, cand)
		require.True(t, ok)
		require.Equal(t, jwtx.SourceDeveloper, c.Source)
	})

	t.Run("source filter", func(t *testing.T) {
		creds := mint(t, jwtx.SourceCredentials, rbac.RoleAdmin, now)
		oauth := mint(t, jwtx.SourceOAuth, rbac.RoleTeacher, now.Add(-time.Minute))
		cands := []session.Candidate{
			{Origin: session.OriginCredentials, Raw: creds},
			{Origin: session.OriginOAuth, Raw: oauth},
		}

		only, ok := session.SourcesFor("oauth")
		require.True(t, ok)
		c, origin, ok := session.Reconcile(v, session.Options{Sources: only}, cands...)
		require.True(t, ok)
		require.Equal(t, session.OriginOAuth, origin)
		require.Equal(t, rbac.RoleTeacher, c.Role)

		only, ok = session.SourcesFor("credentials")
		require.True(t, ok)
		require.Contains(t, only, jwtx.SourceDeveloper)
		c, _, ok = session.Reconcile(v, session.Options{Sources: only}, cands...)
		require.True(t, ok)
		require.Equal(t, rbac.RoleAdmin, c.Role)

		_, ok = session.SourcesFor("saml")
		require.False(t, ok)
	})
}
