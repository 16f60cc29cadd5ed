package authsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/authsdk"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

func TestLoginAndSwitch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "bad")
			return
		}
		require.Equal(t, "/master/panel", r.PostForm.Get("callbackUrl"))
		httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{Token: "tok-1", Role: rbac.RoleMaster, RedirectTo: "/master/panel"})
	})
	mux.HandleFunc("POST /api/auth/switch-role", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		httpx.WriteJSON(w, http.StatusOK, authsdk.SwitchRoleResponse{Token: "tok-2", CurrentRole: rbac.RoleTeacher, RedirectTo: "/profesor"})
	})
	mux.HandleFunc("POST /api/auth/revert-role", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeNotImpersonating, "nothing to revert")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := authsdk.NewSDKClient(srv.URL + "/")

	_, _, err := client.Login(ctx, "root@example.edu", "wrong", "")
	require.ErrorIs(t, err, &authsdk.APIError{Code: authsdk.ErrorCodeInvalidCredentials})

	session, login, err := client.Login(ctx, "root@example.edu", "secret", "/master/panel")
	require.NoError(t, err)
	require.Equal(t, "/master/panel", login.RedirectTo)
	require.Equal(t, "tok-1", session.Token())

	resp, err := session.SwitchRole(ctx, authsdk.SwitchRoleRequest{TargetRole: rbac.RoleTeacher})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleTeacher, resp.CurrentRole)
	require.Equal(t, "tok-2", session.Token())

	_, err = session.RevertRole(ctx)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.False(t, authsdk.IsTemporary(err))
}

func TestAPIErrorCarriesRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorResponse{
			Error:      "unauthenticated",
			RedirectTo: "/login?callbackUrl=/api/master/audit",
		})
	}))
	t.Cleanup(srv.Close)

	_, err := authsdk.NewSDKClient(srv.URL).NewSession("tok").ListAudit(context.Background(), authsdk.AuditQuery{Limit: 5})

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "/login?callbackUrl=/api/master/audit", apiErr.RedirectTo)
}

func TestIsTemporary(t *testing.T) {
	require.False(t, authsdk.IsTemporary(nil))
	require.True(t, authsdk.IsTemporary(errors.New("dial tcp: refused")))
	require.True(t, authsdk.IsTemporary(&authsdk.APIError{StatusCode: http.StatusServiceUnavailable}))
	require.True(t, authsdk.IsTemporary(&authsdk.APIError{StatusCode: http.StatusTooManyRequests}))
	require.False(t, authsdk.IsTemporary(&authsdk.APIError{StatusCode: http.StatusUnauthorized}))
}

func TestSessionWithoutToken(t *testing.T) {
	_, err := authsdk.NewSDKClient("http://127.0.0.1:1").NewSession("").SwitchStatus(context.Background())
	require.ErrorIs(t, err, &authsdk.APIError{Code: authsdk.ErrorCodeUnauthenticated})
}

func TestHealth(t *testing.T) {
	ready := true
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{Status: "ok", Version: "test"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready {
			httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{Status: "ok", Checks: &authsdk.HealthChecks{Database: "ok", Signer: "ok", OAuth: "disabled"}})
			return
		}
		httpx.WriteJSON(w, http.StatusServiceUnavailable, authsdk.HealthResponse{
			Status: "degraded",
			Checks: &authsdk.HealthChecks{Database: "error: database is locked", Signer: "ok", OAuth: "disabled"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := authsdk.NewSDKClient(srv.URL)

	live, err := client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "test", live.Version)

	health, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Empty(t, health.Failing())

	t.Run("degraded report is returned with the error", func(t *testing.T) {
		ready = false
		health, err := client.GetReadiness(ctx)
		require.ErrorIs(t, err, &authsdk.APIError{Code: authsdk.ErrorCodeNotReady})
		require.True(t, authsdk.IsTemporary(err))
		require.Contains(t, err.Error(), "database: error: database is locked")
		require.NotNil(t, health)
		require.Equal(t, "degraded", health.Status)
		require.Equal(t, []string{"database: error: database is locked"}, health.Failing())
	})

	t.Run("unavailable without a report", func(t *testing.T) {
		bare := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(bare.Close)

		health, err := authsdk.NewSDKClient(bare.URL).GetReadiness(ctx)
		require.Nil(t, health)
		require.ErrorIs(t, err, &authsdk.APIError{Code: authsdk.ErrorCodeNotReady})
	})
}
