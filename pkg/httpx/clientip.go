package httpx

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"
)

// trustedProxies is the set of peers whose forwarding headers are honoured.
// Empty means every request is keyed on its direct peer.
var trustedProxies atomic.Pointer[[]netip.Prefix]

// ParseTrustedProxies parses CIDRs or bare addresses, e.g. "10.0.0.0/8" or
// "172.18.0.5".
func ParseTrustedProxies(specs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(specs))
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("httpx: trusted proxy %q is not an address or CIDR", s)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// SetTrustedProxies replaces the trusted proxy set for the process.
func SetTrustedProxies(specs []string) error {
	prefixes, err := ParseTrustedProxies(specs)
	if err != nil {
		return err
	}
	trustedProxies.Store(&prefixes)
	return nil
}

func isTrustedProxy(addr netip.Addr) bool {
	p := trustedProxies.Load()
	if p == nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range *p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address a request came from. Forwarding headers are
// only read when the direct peer is a trusted proxy; X-Forwarded-For is then
// walked right to left and the first untrusted hop wins. X-Real-IP is used
// only when X-Forwarded-For is absent. A malformed chain falls back to the
// peer.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrustedProxy(peer) {
		return host
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return host
			}
			if !isTrustedProxy(hop) {
				return hop.Unmap().String()
			}
		}
		return host
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return host
}
