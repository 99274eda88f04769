// Package safety decides whether a URL may be fetched at all. It enforces the
// scheme, an optional domain allowlist, and an SSRF policy over every address
// the hostname resolves to.
package safety

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrRejected matches every rejection produced by Gate.
var ErrRejected = errors.New("rejected by safety policy")

// RejectedError carries the human-readable reason for a rejection.
type RejectedError struct {
	URL    string
	Reason string
}

func (e *RejectedError) Error() string { return e.Reason }

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

func reject(rawURL string, format string, args ...any) error {
	return &RejectedError{URL: rawURL, Reason: fmt.Sprintf(format, args...)}
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Gate validates URLs before any network access. The zero value resolves
// through net.DefaultResolver and allows every domain.
type Gate struct {
	Resolver Resolver
	// Allowlist holds domain suffixes. Empty means all domains are allowed.
	Allowlist []string
}

// metadataAddrs are rejected regardless of which range they fall in.
var metadataAddrs = []netip.Addr{
	netip.MustParseAddr("169.254.169.254"),
}

var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"255.255.255.255/32",
	"2001::/23",
	"2001:db8::/32",
	"2002::/16",
	"fec0::/10",
)

// globalUnicast6 is the only IPv6 block that is neither reserved nor special.
var globalUnicast6 = netip.MustParsePrefix("2000::/3")

func mustPrefixes(list ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		out = append(out, netip.MustParsePrefix(s))
	}
	return out
}

// Validate returns nil when rawURL may be fetched, or a *RejectedError.
func (g *Gate) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return reject(rawURL, "Invalid URL: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return reject(rawURL, "Only http/https URLs are allowed")
	}
	host := u.Hostname()
	if host == "" {
		return reject(rawURL, "URL must include a hostname")
	}

	literal, isLiteral := parseLiteral(host)
	if !isLiteral {
		host, err = normalizeHost(host)
		if err != nil {
			return reject(rawURL, "Invalid hostname %q: %v", u.Hostname(), err)
		}
	} else {
		host = strings.ToLower(host)
	}

	if !domainAllowed(host, g.Allowlist) {
		return reject(rawURL, "Domain %s is not in the allowlist", host)
	}

	var addrs []netip.Addr
	if isLiteral {
		addrs = []netip.Addr{literal}
	} else {
		addrs, err = g.resolve(ctx, host)
		if err != nil {
			return reject(rawURL, "Failed to resolve hostname: %v", err)
		}
		if len(addrs) == 0 {
			return reject(rawURL, "Failed to resolve hostname: no addresses for %s", host)
		}
	}
	// A hostname may answer differently per lookup, so every address counts.
	for _, a := range addrs {
		if IsBlocked(a) {
			return reject(rawURL, "Blocked host/IP by SSRF policy: %s", a)
		}
	}
	return nil
}

// CheckRedirect re-runs the gate on a redirect target. It has the signature of
// http.Client.CheckRedirect.
func (g *Gate) CheckRedirect(req *http.Request, _ []*http.Request) error {
	if req == nil || req.URL == nil {
		return reject("", "Redirect without a target")
	}
	return g.Validate(req.Context(), req.URL.String())
}

func (g *Gate) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	r := g.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	ipaddrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, 0, len(ipaddrs))
	for _, ia := range ipaddrs {
		a, ok := netip.AddrFromSlice(ia.IP)
		if !ok {
			return nil, fmt.Errorf("unparseable address %q", ia.IP)
		}
		out = append(out, a.Unmap())
	}
	return out, nil
}

// IsBlocked reports whether an address is private, loopback, link-local,
// multicast, unspecified, reserved, or a cloud metadata endpoint.
func IsBlocked(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsValid() {
		return true
	}
	if a.IsPrivate() || a.IsLoopback() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsInterfaceLocalMulticast() ||
		a.IsMulticast() || a.IsUnspecified() {
		return true
	}
	for _, m := range metadataAddrs {
		if a == m {
			return true
		}
	}
	if a.Is6() && !globalUnicast6.Contains(a) {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func parseLiteral(host string) (netip.Addr, bool) {
	// Hostname() already strips IPv6 brackets; zones are never fetchable.
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a, true
}

func normalizeHost(host string) (string, error) {
	h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h == "" {
		return "", errors.New("empty hostname")
	}
	return idna.Lookup.ToASCII(h)
}

// NormalizeAllowlist lowercases and IDNA-encodes domain entries, dropping
// blanks and leading dots.
func NormalizeAllowlist(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimPrefix(strings.TrimSpace(e), ".")
		if e == "" {
			continue
		}
		if n, err := normalizeHost(e); err == nil {
			out = append(out, n)
		} else {
			out = append(out, strings.ToLower(e))
		}
	}
	return out
}

// domainAllowed matches whole labels only: "example.com" allows
// "example.com" and "a.example.com" but not "badexample.com".
func domainAllowed(host string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, d := range NormalizeAllowlist(allowlist) {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
