package httpx

import (
	"net"
	"path"
	"strings"
)

// DevHosts matches request hosts against glob patterns such as "localhost"
// or "*.preview.example.com". Ports are ignored on both sides.
type DevHosts struct {
	patterns []string
}

// NewDevHosts builds a matcher. Blank and malformed patterns are dropped.
func NewDevHosts(patterns ...string) *DevHosts {
	d := &DevHosts{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			continue
		}
		d.patterns = append(d.patterns, stripPort(p))
	}
	return d
}

// Match reports whether host is a development host. A nil or empty matcher
// matches nothing.
func (d *DevHosts) Match(host string) bool {
	if d == nil || len(d.patterns) == 0 {
		return false
	}
	host = stripPort(strings.ToLower(strings.TrimSpace(host)))
	if host == "" {
		return false
	}
	for _, p := range d.patterns {
		if ok, _ := path.Match(p, host); ok {
			return true
		}
	}
	return false
}

// Patterns returns the accepted patterns.
func (d *DevHosts) Patterns() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.patterns...)
}

func stripPort(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}
