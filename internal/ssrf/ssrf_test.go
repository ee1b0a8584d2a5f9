package ssrf

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, s := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	return out, nil
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestAllowed(t *testing.T) {
	g := New(fakeResolver{
		"example.com":    {"93.184.216.34"},
		"dual.example":   {"93.184.216.34", "2606:2800:220:1::248"},
		"rebind.example": {"93.184.216.34", "127.0.0.1"},
		"private.test":   {"10.1.2.3"},
		"mapped.test":    {"::ffff:192.168.1.1"},
		"empty.test":     {},
		"cgnat.test":     {"100.64.1.1"},
	}, quietLog())

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"public domain", "https://example.com/video.mp4", true},
		{"public http", "http://example.com/", true},
		{"dual stack public", "https://dual.example/a", true},
		{"rebinding mix", "https://rebind.example/a", false},
		{"private domain", "https://private.test/", false},
		{"mapped private", "https://mapped.test/", false},
		{"no addresses", "https://empty.test/", false},
		{"lookup failure", "https://nxdomain.test/", false},
		{"carrier nat", "https://cgnat.test/", false},

		{"literal public v4", "https://93.184.216.34/", true},
		{"literal loopback", "http://127.0.0.1:8080/", false},
		{"literal loopback high", "http://127.255.0.9/", false},
		{"literal rfc1918 10", "http://10.0.0.1/", false},
		{"literal rfc1918 172", "http://172.16.5.4/", false},
		{"literal 172 outside range", "http://172.32.0.1/", true},
		{"literal rfc1918 192", "http://192.168.0.1/", false},
		{"literal link-local", "http://169.254.169.254/latest/meta-data", false},
		{"literal zero", "http://0.0.0.0/", false},
		{"literal v6 loopback", "http://[::1]/", false},
		{"literal v6 unspecified", "http://[::]/", false},
		{"literal v6 ula", "http://[fd00::1]/", false},
		{"literal v6 link-local", "http://[fe80::1]/", false},
		{"literal v6 link-local zone", "http://[fe80::1%25eth0]/", false},
		{"literal v6 site-local", "http://[fec0::1]/", false},
		{"literal mapped loopback", "http://[::ffff:127.0.0.1]/", false},
		{"literal public v6", "https://[2606:2800:220:1::248]/", true},

		{"ftp scheme", "ftp://example.com/", false},
		{"file scheme", "file:///etc/passwd", false},
		{"gopher scheme", "gopher://example.com/", false},
		{"empty", "", false},
		{"garbage", "://", false},
		{"no host", "https:///path", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Allowed(context.Background(), tt.url), tt.url)
		})
	}
}

func TestBlocked(t *testing.T) {
	assert.True(t, Blocked(netip.Addr{}))
	assert.True(t, Blocked(netip.MustParseAddr("::ffff:10.0.0.1")))
	assert.True(t, Blocked(netip.MustParseAddr("224.0.0.1")))
	assert.False(t, Blocked(netip.MustParseAddr("8.8.8.8")))
	assert.False(t, Blocked(netip.MustParseAddr("2001:4860:4860::8888")))
}

func TestControl(t *testing.T) {
	g := New(nil, quietLog())

	assert.Error(t, g.Control("tcp4", "127.0.0.1:443", nil))
	assert.Error(t, g.Control("tcp6", "[::1]:443", nil))
	assert.Error(t, g.Control("tcp", "nohost", nil))
	assert.NoError(t, g.Control("tcp4", "93.184.216.34:443", nil))
}
