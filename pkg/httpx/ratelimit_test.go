package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestIPKeyExtractor(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, httpx.SetTrustedProxies(nil)) })

	req := func(remote string, headers ...string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		for i := 0; i+1 < len(headers); i += 2 {
			r.Header.Add(headers[i], headers[i+1])
		}
		return r
	}

	t.Run("remote addr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req("192.168.1.1:12345")))
	})

	t.Run("forwarding headers ignored without trusted proxies", func(t *testing.T) {
		require.NoError(t, httpx.SetTrustedProxies(nil))
		spoofed := req("198.51.100.7:4000",
			"X-Forwarded-For", "203.0.113.1",
			"X-Real-IP", "203.0.113.2",
		)
		require.Equal(t, "198.51.100.7", httpx.IPKeyExtractor(spoofed))
	})

	t.Run("forwarding headers ignored from an untrusted peer", func(t *testing.T) {
		require.NoError(t, httpx.SetTrustedProxies([]string{"10.0.0.0/8"}))
		spoofed := req("198.51.100.7:4000", "X-Forwarded-For", "203.0.113.1")
		require.Equal(t, "198.51.100.7", httpx.IPKeyExtractor(spoofed))
	})

	t.Run("trusted proxy chain walked right to left", func(t *testing.T) {
		require.NoError(t, httpx.SetTrustedProxies([]string{"10.0.0.0/8", "172.18.0.5"}))
		// The client prepended a forged hop; the proxies appended the real one.
		r := req("172.18.0.5:80", "X-Forwarded-For", "1.2.3.4, 203.0.113.1, 10.1.2.3")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(r))

		split := req("10.0.0.1:80", "X-Forwarded-For", "1.2.3.4", "X-Forwarded-For", "203.0.113.9")
		require.Equal(t, "203.0.113.9", httpx.IPKeyExtractor(split))
	})

	t.Run("X-Real-IP from a trusted proxy", func(t *testing.T) {
		require.NoError(t, httpx.SetTrustedProxies([]string{"10.0.0.0/8"}))
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req("10.0.0.1:80", "X-Real-IP", "203.0.113.2")))
	})

	t.Run("malformed chain falls back to the peer", func(t *testing.T) {
		require.NoError(t, httpx.SetTrustedProxies([]string{"10.0.0.0/8"}))
		require.Equal(t, "10.0.0.1", httpx.IPKeyExtractor(req("10.0.0.1:80", "X-Forwarded-For", "not-an-ip")))
		require.Equal(t, "10.0.0.1", httpx.IPKeyExtractor(req("10.0.0.1:80", "X-Forwarded-For", "10.9.9.9")))
	})

	t.Run("invalid trusted proxy", func(t *testing.T) {
		_, err := httpx.ParseTrustedProxies([]string{"10.0.0.0/8", "proxy.internal"})
		require.ErrorContains(t, err, "proxy.internal")
	})
}

func TestKeyExtractors(t *testing.T) {
	t.Run("form field from post body", func(t *testing.T) {
		form := url.Values{"email": {"Ana@Example.test"}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.Equal(t, "ana@example.test", httpx.FormFieldKeyExtractor("email")(req))
	})

	t.Run("composite skips empty parts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		key := httpx.CompositeKeyExtractor(":", httpx.UserIDKeyExtractor, httpx.IPKeyExtractor)(req)
		require.Equal(t, "10.0.0.1", key)
	})

	t.Run("user id from claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		c := jwtx.Claims{}
		c.Subject = "u-9"
		req = req.WithContext(httpx.ContextWithClaims(context.Background(), c))
		key := httpx.CompositeKeyExtractor(":", httpx.UserIDKeyExtractor, httpx.IPKeyExtractor)(req)
		require.Equal(t, "u-9:10.0.0.1", key)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	h := httpx.RateLimitByIP(cfg)(okHandler)

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	require.Equal(t, http.StatusOK, hit("10.0.0.1").Code)

	rec := hit("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
	require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	// Other clients are unaffected.
	require.Equal(t, http.StatusOK, hit("10.0.0.2").Code)
}

func TestRateLimitMiddlewareNoKey(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" })(okHandler)

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Setenv("RATELIMIT_TEST_REQUESTS", "50")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_TEST_BURST", "-1")

	got := httpx.ParseRateLimitFromEnv("TEST", def)
	require.Equal(t, 50, got.RequestsPerWindow)
	require.Equal(t, 30*time.Second, got.Window)
	require.Equal(t, 5, got.Burst)
}

func TestRateLimitProfilesOrdered(t *testing.T) {
	require.Less(t, httpx.StrictLimit.RequestsPerWindow, httpx.ModerateLimit.RequestsPerWindow)
	require.Less(t, httpx.ModerateLimit.RequestsPerWindow, httpx.LenientLimit.RequestsPerWindow)
	require.Less(t, httpx.LenientLimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)
}
