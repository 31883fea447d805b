// Package clientip resolves the best-effort client address for throttling and
// turns it into a salted, truncated hash. The raw address is handed to the
// captcha service and otherwise never leaves this package's callers unhashed.
//
// Proxy headers are only honored when the immediate peer is a configured
// trusted proxy, so a direct client cannot pick its own identifier.
package clientip

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is returned when no usable address can be found.
const Unknown = "unknown"

const hashLength = 16

// Resolver extracts the client address from a request.
type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver creates a Resolver trusting the given proxy networks.
func NewResolver(trusted []netip.Prefix) *Resolver {
	return &Resolver{trusted: trusted}
}

// Resolve returns the client address. Precedence when the peer is trusted:
// the right-most untrusted X-Forwarded-For entry, then X-Real-IP, then the peer.
func (res *Resolver) Resolve(r *http.Request) string {
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return Unknown
	}
	if !res.isTrusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, ok := parseAddr(hops[i])
			if !ok {
				continue
			}
			if !res.isTrusted(addr) {
				return addr.String()
			}
		}
	}

	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}

	return peer.String()
}

func (res *Resolver) isTrusted(addr netip.Addr) bool {
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseAddr accepts "ip", "ip:port" and "[ipv6]:port". IPv4-mapped IPv6
// addresses are unmapped so both notations hash the same.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap(), true
	}
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// Hash returns the privacy-preserving identifier for ip: the first 16 hex
// characters of SHA-256(salt + ip).
func Hash(salt, ip string) string {
	sum := sha256.Sum256([]byte(salt + ip))
	return hex.EncodeToString(sum[:])[:hashLength]
}
