package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// Session makes calls with a bearer session token. Role switches replace
// the token in place.
type Session struct {
	client *SDKClient

	mu    sync.RWMutex
	token string
}

// NewSession wraps an existing session token.
func (c *SDKClient) NewSession(token string) *Session {
	return &Session{client: c, token: token}
}

// Token returns the current session token.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// GetSession returns the session view of the bearer token, re-checked
// against the identity store. A reissued token replaces the current one.
func (s *Session) GetSession(ctx context.Context) (*SessionResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/api/auth/session", nil, nil)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if tok := resp.Header.Get(SessionTokenHeader); tok != "" {
		s.setToken(tok)
	}
	return &out, nil
}

// SessionSource adapts GetSession for a Reconciler.
func (s *Session) SessionSource() Source {
	return SourceFunc(func(ctx context.Context) (SessionResponse, error) {
		out, err := s.GetSession(ctx)
		if err != nil {
			return SessionResponse{}, err
		}
		return *out, nil
	})
}

// SwitchRole asks the gate for a token acting as target.
func (s *Session) SwitchRole(ctx context.Context, req SwitchRoleRequest) (*SwitchRoleResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return s.roleChange(ctx, "/api/auth/switch-role", body)
}

// RevertRole ends an active role switch.
func (s *Session) RevertRole(ctx context.Context) (*SwitchRoleResponse, error) {
	return s.roleChange(ctx, "/api/auth/revert-role", nil)
}

func (s *Session) roleChange(ctx context.Context, path string, body []byte) (*SwitchRoleResponse, error) {
	headers := map[string]string{}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, bytes.NewReader(body), headers)
	if err != nil {
		return nil, err
	}

	var out SwitchRoleResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	s.setToken(out.Token)
	return &out, nil
}

// SwitchStatus reports the impersonation state of the session.
func (s *Session) SwitchStatus(ctx context.Context) (*SwitchStatus, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/api/auth/switch-status", nil, nil)
	if err != nil {
		return nil, err
	}

	var out SwitchStatus
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteRegistration marks a PARENT's registration as done.
func (s *Session) CompleteRegistration(ctx context.Context) (*LoginResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/api/auth/registration/complete", nil, nil)
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	s.setToken(out.Token)
	return &out, nil
}

// ListAudit returns a page of the role-switch audit log. MASTER only.
func (s *Session) ListAudit(ctx context.Context, q AuditQuery) (*AuditListResponse, error) {
	v := url.Values{}
	if q.ActorID != "" {
		v.Set("actor", q.ActorID)
	}
	if q.Action != "" {
		v.Set("action", q.Action)
	}
	if q.Before != "" {
		v.Set("before", q.Before)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/master/audit"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var out AuditListResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
