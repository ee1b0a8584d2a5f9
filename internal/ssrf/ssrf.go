// Package ssrf keeps egress away from private, loopback and link-local addresses.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"syscall"

	"github.com/sirupsen/logrus"

	"getbox/internal/httputil"
)

// Resolver looks up every address a host maps to.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("255.255.255.255/32"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fec0::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// Blocked reports whether addr falls in a private, loopback, link-local or
// otherwise non-public range. IPv4-mapped IPv6 addresses are checked as IPv4.
func Blocked(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Guard decides whether a URL may be fetched.
type Guard struct {
	resolver Resolver
	log      *logrus.Entry
}

// New returns a Guard. A nil resolver uses net.DefaultResolver.
func New(resolver Resolver, log *logrus.Entry) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Guard{resolver: resolver, log: log.WithField("component", "ssrf")}
}

// Allowed reports whether rawURL is an HTTP(S) URL whose host resolves only
// to public addresses. Any failure, including a lookup error or an empty
// answer, denies.
func (g *Guard) Allowed(ctx context.Context, rawURL string) bool {
	if err := httputil.ValidateURL(rawURL); err != nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()

	if addr, err := netip.ParseAddr(host); err == nil {
		if Blocked(addr) {
			g.log.WithField("host", host).Warn("blocked literal address")
			return false
		}
		return true
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		g.log.WithError(err).WithField("host", host).Warn("lookup failed, denying")
		return false
	}
	if len(addrs) == 0 {
		g.log.WithField("host", host).Warn("host resolved to no addresses")
		return false
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok || Blocked(ip) {
			g.log.WithFields(logrus.Fields{"host": host, "addr": a.IP.String()}).Warn("host resolved to blocked address")
			return false
		}
	}
	return true
}

// Control is a net.Dialer control hook that refuses connections to blocked
// addresses. It closes the window between the Allowed lookup and the dial.
func (g *Guard) Control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("ssrf: bad dial address %q: %w", address, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("ssrf: dial to unresolved host %q", host)
	}
	if Blocked(addr) {
		g.log.WithField("addr", host).Warn("blocked dial")
		return fmt.Errorf("ssrf: dial to %s blocked", host)
	}
	return nil
}
