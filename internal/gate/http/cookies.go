package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
)

// CookieConfig controls the session cookies the gate sets.
type CookieConfig struct {
	Secure bool
	Domain string
}

// cookieFor picks the cookie a session from src travels in.
func cookieFor(src jwtx.Source) string {
	if src == jwtx.SourceOAuth {
		return httpx.CookieOAuth
	}
	return httpx.CookieSession
}

func (c CookieConfig) set(w http.ResponseWriter, claims jwtx.Claims, token string) {
	cookie := &http.Cookie{
		Name:     cookieFor(claims.Source),
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if claims.ExpiresAt != nil {
		cookie.Expires = claims.ExpiresAt.Time
		cookie.MaxAge = max(int(time.Until(claims.ExpiresAt.Time).Seconds()), 1)
	}
	http.SetCookie(w, cookie)
}

func (c CookieConfig) clear(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   c.Domain,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
		})
	}
}
