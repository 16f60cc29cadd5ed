package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SDKClient talks to the gate. Unauthenticated calls go through it; an
// authenticated Session is created from a login or an existing token.
//
// When HTTPClient has a cookie jar the session cookies set by the gate are
// sent back automatically, which is how a browser-like runtime uses it.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client for the gate at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			// The gate answers page requests with redirects; callers want to
			// see them rather than follow.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Login signs in with email and password. callbackURL is where the user was
// heading, and may be empty.
func (c *SDKClient) Login(ctx context.Context, email, password, callbackURL string) (*Session, *LoginResponse, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	if callbackURL != "" {
		form.Set("callbackUrl", callbackURL)
	}
	return c.login(ctx, "/api/auth/login", form)
}

// DevLogin signs in as an existing identity without a password. The gate
// only serves it on dev hosts.
func (c *SDKClient) DevLogin(ctx context.Context, email string) (*Session, *LoginResponse, error) {
	form := url.Values{}
	form.Set("email", email)
	return c.login(ctx, "/api/auth/dev-login", form)
}

// OAuthExchange trades an assertion from the OAuth provider for a session.
func (c *SDKClient) OAuthExchange(ctx context.Context, assertion string) (*Session, *LoginResponse, error) {
	form := url.Values{}
	form.Set("assertion", assertion)
	return c.login(ctx, "/api/auth/oauth/callback", form)
}

func (c *SDKClient) login(ctx context.Context, path string, form url.Values) (*Session, *LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, nil, err
	}
	return c.NewSession(out.Token), &out, nil
}

// GetSession returns the session carried by the client's cookies. provider
// ("credentials" or "oauth") narrows it to one identity source.
func (c *SDKClient) GetSession(ctx context.Context, provider string) (*SessionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, sessionPath(provider), nil, nil)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionSource adapts GetSession for a Reconciler.
func (c *SDKClient) SessionSource(provider string) Source {
	return SourceFunc(func(ctx context.Context) (SessionResponse, error) {
		s, err := c.GetSession(ctx, provider)
		if err != nil {
			return SessionResponse{}, err
		}
		return *s, nil
	})
}

// Logout clears the gate's session cookies.
func (c *SDKClient) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func sessionPath(provider string) string {
	if provider == "" {
		return "/api/auth/session"
	}
	return "/api/auth/session?source=" + url.QueryEscape(provider)
}
