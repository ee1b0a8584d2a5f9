package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// Route pairs a hostname pattern with the extractor that handles it.
type Route struct {
	Pattern   *regexp.Regexp
	Extractor Extractor
}

// Router maps hostnames onto extractors. The first matching route wins.
type Router struct {
	routes []Route
}

// NewRouter returns a Router over routes, tried in order.
func NewRouter(routes ...Route) *Router {
	return &Router{routes: routes}
}

// DefaultRoutes is the built-in platform table. YouTube goes straight to
// the yt-dlp extractor.
func DefaultRoutes(ytdlp Extractor) []Route {
	return []Route{
		{regexp.MustCompile(`^instagram\.com$`), NewInstagram()},
		{regexp.MustCompile(`^(?:vm\.|vt\.)?tiktok\.com$`), NewTikTok()},
		{regexp.MustCompile(`^(?:twitter\.com|x\.com)$`), NewTwitter()},
		{regexp.MustCompile(`^(?:youtube\.com|youtu\.be|music\.youtube\.com)$`), ytdlp},
		{regexp.MustCompile(`^(?:(?:old|new)\.)?reddit\.com$|^redd\.it$`), NewReddit()},
		{regexp.MustCompile(`^(?:i\.)?imgur\.com$`), NewImgur()},
		{regexp.MustCompile(`^(?:[a-z]{2}\.)?pinterest\.com$|^pin\.it$`), NewPinterest()},
		{regexp.MustCompile(`^soundcloud\.com$`), NewSoundCloud()},
	}
}

// Route returns the extractor for rawURL. An unparsable URL or an
// unknown host is not an error; it just has no route.
func (r *Router) Route(rawURL string) (Extractor, bool) {
	host := normalizeHost(rawURL)
	if host == "" {
		return nil, false
	}
	for _, rt := range r.routes {
		if rt.Pattern.MatchString(host) {
			return rt.Extractor, true
		}
	}
	return nil, false
}

func normalizeHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	return host
}
