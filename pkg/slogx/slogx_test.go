package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen *slog.Logger
	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = slogx.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates request id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

		require.Equal(t, http.StatusTeapot, rec.Code)
		require.NotEmpty(t, rec.Header().Get(slogx.RequestIDHeader))
		require.NotNil(t, seen)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		require.Equal(t, "http_request", entry["msg"])
		require.Equal(t, float64(http.StatusTeapot), entry["status"])
		require.Equal(t, "/admin", entry["path"])
	})

	t.Run("keeps inbound request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(slogx.RequestIDHeader, "abc-123")
		h.ServeHTTP(rec, req)
		require.Equal(t, "abc-123", rec.Header().Get(slogx.RequestIDHeader))
	})
}

func TestWithClaims(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	c := jwtx.NewSessionClaims(jwtx.SessionParams{
		Subject: "u-1",
		Role:    rbac.RoleTeacher,
		Source:  jwtx.SourceOAuth,
	}, "", time.Hour, time.Now())
	c.Impersonation = &jwtx.Impersonation{Active: true, OriginalRole: rbac.RoleMaster}

	slogx.FromContext(slogx.WithClaims(ctx, c)).Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "u-1", entry["sub"])
	require.Equal(t, "TEACHER", entry["role"])
	require.Equal(t, "oauth", entry["src"])
	require.Equal(t, true, entry["impersonating"])
}

func TestFromContextDefault(t *testing.T) {
	require.Equal(t, slog.Default(), slogx.FromContext(context.Background()))
}

func TestNew(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := slogx.New(slogx.Config{
		Service:  "schoolgate",
		Version:  "v1.2.3",
		Env:      "test",
		Level:    "WARN",
		Instance: "gate-0",
		Output:   &buf,
	})
	require.NoError(t, err)
	require.Equal(t, logger, slog.Default())

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("login failed",
		"email", "ana@example.edu",
		"password", "hunter2",
		slog.Group("req", "Authorization", "Bearer abc", "path", "/login"),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "schoolgate", entry["service"])
	require.Equal(t, "gate-0", entry["instance"])
	require.Equal(t, "ana@example.edu", entry["email"])
	require.Equal(t, slogx.Redacted, entry["password"])
	req := entry["req"].(map[string]any)
	require.Equal(t, slogx.Redacted, req["Authorization"])
	require.Equal(t, "/login", req["path"])
	require.NotContains(t, buf.String(), "hunter2")

	t.Run("unknown format", func(t *testing.T) {
		_, err := slogx.New(slogx.Config{Format: "xml", Output: &bytes.Buffer{}})
		require.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" Info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	} {
		got, err := slogx.ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := slogx.ParseLevel("verbose")
	require.ErrorContains(t, err, "verbose")
}
