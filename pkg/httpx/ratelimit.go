package httpx

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/schoolgate/pkg/slogx"
)

// RateLimitConfig defines a token bucket per key.
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained number of requests per Window.
	RequestsPerWindow int
	Window            time.Duration
	// Burst is how many requests may arrive at once.
	Burst int
}

// Profiles for the gate's endpoints. Each one can be overridden with
// RATELIMIT_{PROFILE}_REQUESTS, RATELIMIT_{PROFILE}_WINDOW_SEC and
// RATELIMIT_{PROFILE}_BURST.
var (
	// StrictLimit guards credential and developer logins.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// ModerateLimit guards the OAuth exchange and session refreshes.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit guards authenticated reads such as the audit log.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}

	// PublicLimit guards health checks and docs.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
	PublicLimit = ParseRateLimitFromEnv("PUBLIC", PublicLimit)
}

// ParseRateLimitFromEnv overlays RATELIMIT_{prefix}_* environment variables
// on defaultConfig. Invalid or non-positive values are ignored.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig
	env := func(field string) (int, bool) {
		v, err := strconv.Atoi(os.Getenv("RATELIMIT_" + prefix + "_" + field))
		return v, err == nil && v > 0
	}

	if n, ok := env("REQUESTS"); ok {
		config.RequestsPerWindow = n
	}
	if n, ok := env("WINDOW_SEC"); ok {
		config.Window = time.Duration(n) * time.Second
	}
	if n, ok := env("BURST"); ok {
		config.Burst = n
	}

	return config
}

// KeyExtractor picks the rate-limit key for a request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys on the client address as resolved by ClientIP.
func IPKeyExtractor(r *http.Request) string {
	return ClientIP(r)
}

// UserIDKeyExtractor returns the session subject the Gate attached, or "".
func UserIDKeyExtractor(r *http.Request) string {
	if userID, ok := r.Context().Value(CtxKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// CompositeKeyExtractor joins the non-empty results of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// FormFieldKeyExtractor keys on a form field from the query or a
// url-encoded body.
func FormFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err == nil {
			return strings.ToLower(strings.TrimSpace(r.FormValue(fieldName)))
		}
		return ""
	}
}

// tokenBuckets holds one rate.Limiter per key.
type tokenBuckets struct {
	limiters    sync.Map // string -> *rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (tb *tokenBuckets) get(key string) *rate.Limiter {
	if l, ok := tb.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}

	actual, _ := tb.limiters.LoadOrStore(key, rate.NewLimiter(tb.rate, tb.burst))
	tb.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle buckets at most every five minutes. A bucket that
// has refilled completely hasn't been used recently.
func (tb *tokenBuckets) maybeCleanup() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if time.Since(tb.lastCleanup) < 5*time.Minute {
		return
	}
	tb.lastCleanup = time.Now()

	tb.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(tb.burst) {
			tb.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware rejects requests with 429 once the bucket for their
// key is empty. Requests without a key pass through.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	tb := &tokenBuckets{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			limiter := tb.get(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			// Peek at when the next token lands without spending it.
			res := limiter.Reserve()
			delay := res.Delay()
			res.Cancel()

			WriteTooManyRequests(w, delay, config)
			log.Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", delay.String(),
			)
		})
	}
}

// WriteTooManyRequests writes the 429 envelope with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration, config RateLimitConfig) {
	secs := max(int(retryAfter.Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	if config.RequestsPerWindow > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Window", config.Window.String())
	}
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
}

// RateLimitByIP limits by client IP only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByUser limits by session subject, falling back to IP.
func RateLimitByUser(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}

// RateLimitByIPAndFormField limits by IP plus a form field, e.g. the email
// on a login attempt.
func RateLimitByIPAndFormField(config RateLimitConfig, fieldName string) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		IPKeyExtractor,
		FormFieldKeyExtractor(fieldName),
	))
}
