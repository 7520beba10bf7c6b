package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIPHeaders are consulted in order when the peer is a trusted proxy.
var clientIPHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_CLIENT_IP",
	"HTTP_X_FORWARDED_FOR",
}

// IPResolver extracts the caller address of a request. Proxy headers are
// honored only when the direct peer is one of the trusted proxies; otherwise
// RemoteAddr is authoritative. The zero value trusts no proxy.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver parses trusted proxies given as CIDR ranges or single
// addresses.
func NewIPResolver(trustedProxies ...string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(normalizeIP(raw))
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

func (r *IPResolver) isTrusted(ip string) bool {
	if r == nil || len(r.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(normalizeIP(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller address. Behind a trusted proxy the proxy
// headers win over RemoteAddr: X-Forwarded-For is walked from the right,
// skipping trusted hops, and the other headers use their first entry other
// than "unknown". Loopback IPv6 is reported as 127.0.0.1 and IPv4-mapped
// addresses lose their ::ffff: prefix.
func (r *IPResolver) ClientIP(req *http.Request) string {
	peer := remoteHost(req)
	if !r.isTrusted(peer) {
		return normalizeIP(peer)
	}

	for _, header := range clientIPHeaders {
		value := req.Header.Get(header)
		if value == "" {
			continue
		}
		var ip string
		if header == "X-Forwarded-For" {
			ip = r.rightmostUntrusted(value)
		} else {
			ip = firstKnown(value)
		}
		if ip != "" {
			return normalizeIP(ip)
		}
	}
	return normalizeIP(peer)
}

func (r *IPResolver) rightmostUntrusted(value string) string {
	parts := knownEntries(value)
	for i := len(parts) - 1; i >= 0; i-- {
		if !r.isTrusted(parts[i]) {
			return parts[i]
		}
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

type clientIPContextKey struct{}

func withResolvedIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIP returns the address Authenticate resolved for r. Outside the
// filter no proxy is trusted and the RemoteAddr host is returned.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey{}).(string); ok && ip != "" {
		return ip
	}
	return (*IPResolver)(nil).ClientIP(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func knownEntries(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !strings.EqualFold(part, "unknown") {
			out = append(out, part)
		}
	}
	return out
}

func firstKnown(value string) string {
	if parts := knownEntries(value); len(parts) > 0 {
		return parts[0]
	}
	return ""
}

func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	ip = strings.TrimPrefix(strings.TrimSuffix(ip, "]"), "[")
	switch ip {
	case "::1", "0:0:0:0:0:0:0:1":
		return "127.0.0.1"
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(ip), "::ffff:"); ok && net.ParseIP(rest).To4() != nil {
		return rest
	}
	return ip
}
