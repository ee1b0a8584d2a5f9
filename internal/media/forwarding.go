package media

import (
	"net/url"
	"slices"
	"strings"

	"getbox/internal/httputil"
)

// TikTokReferer is forced onto requests for TikTok hosts and their CDN.
const TikTokReferer = "https://www.tiktok.com/"

// Forwarding carries the request context an origin expects to see.
type Forwarding struct {
	UserAgent string            `json:"userAgent"`
	Referer   string            `json:"referer"`
	Cookie    string            `json:"cookie"`
	Headers   map[string]string `json:"headers"`
}

// Effective resolves the values to send upstream.
//
// Precedence, highest first: the dedicated fields, then each header map in
// the order given, then the stored Headers map. Platform defaults and the
// service user agent are applied afterwards by ForURL.
func (f Forwarding) Effective(overrides ...map[string]string) Forwarding {
	out := Forwarding{
		UserAgent: f.UserAgent,
		Referer:   f.Referer,
		Cookie:    f.Cookie,
		Headers:   f.Headers,
	}
	for _, m := range append(overrides, f.Headers) {
		if out.UserAgent == "" {
			out.UserAgent = headerValue(m, "User-Agent")
		}
		if out.Referer == "" {
			out.Referer = headerValue(m, "Referer")
		}
		if out.Cookie == "" {
			out.Cookie = headerValue(m, "Cookie")
		}
	}
	return out
}

// ForURL fills platform defaults for the target URL and the service user
// agent. relaxEncoding reports whether the origin must be allowed to
// negotiate compression instead of receiving Accept-Encoding: identity.
func (f Forwarding) ForURL(rawURL string) (out Forwarding, relaxEncoding bool) {
	out = f
	if IsTikTokURL(rawURL) {
		// Referer is forced for the CDN, which rejects anything else.
		out.Referer = TikTokReferer
		relaxEncoding = true
	}
	if out.UserAgent == "" {
		out.UserAgent = httputil.DefaultUserAgent
	}
	return out, relaxEncoding
}

// IsTikTokURL reports whether rawURL points at TikTok or its ttcdn hosts.
func IsTikTokURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com") ||
		strings.Contains(host, "ttcdn") || strings.Contains(host, "tiktokcdn")
}

// managedHeaders are never taken from the stored map: dedicated fields or
// the transport own them.
var managedHeaders = map[string]bool{
	"user-agent":        true,
	"referer":           true,
	"cookie":            true,
	"host":              true,
	"content-length":    true,
	"connection":        true,
	"transfer-encoding": true,
	"accept-encoding":   true,
	"range":             true,
}

// ExtraHeaders returns the keys of Headers that are forwarded as-is, sorted.
// Malformed names are dropped.
func (f Forwarding) ExtraHeaders() []string {
	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		if k == "" || managedHeaders[strings.ToLower(k)] || strings.ContainsAny(k, ":\r\n \t") {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func headerValue(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) && v != "" {
			return v
		}
	}
	return ""
}
