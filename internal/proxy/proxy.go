// Package proxy relays a single upstream file to the client as an attachment.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"getbox/internal/httputil"
	"getbox/internal/media"
)

// ErrBlocked is returned when the target, or a redirect hop, is not allowed.
var ErrBlocked = errors.New("blocked URL")

const maxRedirects = 10

// Checker decides whether a URL may be fetched.
type Checker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// UpstreamStatusError is a non-success status from the origin.
type UpstreamStatusError struct {
	Status int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("Upstream returned %d", e.Status)
}

// StreamError is a failure after the response headers were sent. The status
// can no longer change; the connection has to be aborted.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "relaying body: " + e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// Request describes one relay.
type Request struct {
	URL        string
	Filename   string
	Forwarding media.Forwarding
	Range      string
}

// Proxy streams upstream bodies through to clients.
type Proxy struct {
	client  *http.Client
	checker Checker
	log     *logrus.Entry
	relayed atomic.Int64
}

// New returns a Proxy that checks the target and every redirect with checker.
// client should enforce the same policy at dial time; see
// httputil.NewStreamingClient.
func New(client *http.Client, checker Checker, log *logrus.Entry) *Proxy {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.New("too many redirects")
		}
		if !checker.Allowed(req.Context(), req.URL.String()) {
			return ErrBlocked
		}
		return nil
	}
	return &Proxy{client: &c, checker: checker, log: log.WithField("component", "proxy")}
}

// Relayed returns the number of body bytes written to clients.
func (p *Proxy) Relayed() int64 { return p.relayed.Load() }

// Serve fetches req.URL and writes it to w. Errors returned before anything
// was written leave w untouched; afterwards they are *StreamError.
func (p *Proxy) Serve(ctx context.Context, w http.ResponseWriter, req Request) error {
	if !p.checker.Allowed(ctx, req.URL) {
		return ErrBlocked
	}

	resp, err := p.fetch(ctx, req.URL, req.Forwarding, req.Range)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamStatusError{Status: resp.StatusCode}
	}

	copyHeaders(w.Header(), resp.Header)
	filename := resolveFilename(req.Filename, resp.Header.Get("Content-Disposition"), resp.Request.URL)
	w.Header().Set("Content-Disposition", httputil.ContentDisposition(filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.StatusCode)

	n, err := copyBody(w, resp.Body)
	p.relayed.Add(n)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StreamError{Err: err}
	}
	p.log.WithFields(logrus.Fields{"bytes": n, "filename": filename}).Debug("relay finished")
	return nil
}

// Locate follows rawURL's redirects under the same per-hop checks as Serve
// and returns the final location, for ffmpeg, which follows redirects
// unchecked. Only the first byte is requested; the status is not inspected.
func (p *Proxy) Locate(ctx context.Context, rawURL string, fwd media.Forwarding) (string, error) {
	if !p.checker.Allowed(ctx, rawURL) {
		return "", ErrBlocked
	}
	resp, err := p.fetch(ctx, rawURL, fwd, "bytes=0-0")
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return resp.Request.URL.String(), nil
}

// fetch sends one GET for rawURL with the forwarding headers applied.
func (p *Proxy) fetch(ctx context.Context, rawURL string, f media.Forwarding, byteRange string) (*http.Response, error) {
	upReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	fwd, relaxEncoding := f.ForURL(rawURL)
	for _, k := range fwd.ExtraHeaders() {
		if v := httputil.HeaderValue(fwd.Headers[k]); v != "" {
			upReq.Header.Set(k, v)
		}
	}
	upReq.Header.Set("User-Agent", httputil.HeaderValue(fwd.UserAgent))
	if fwd.Referer != "" {
		upReq.Header.Set("Referer", httputil.HeaderValue(fwd.Referer))
	}
	if fwd.Cookie != "" {
		upReq.Header.Set("Cookie", httputil.HeaderValue(fwd.Cookie))
	}
	if byteRange != "" {
		upReq.Header.Set("Range", httputil.HeaderValue(byteRange))
	}
	if !relaxEncoding {
		upReq.Header.Set("Accept-Encoding", "identity")
	}

	resp, err := p.client.Do(upReq)
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			return nil, ErrBlocked
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.NetworkError{URL: rawURL, Err: err}
	}
	return resp, nil
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Set-Cookie":          true,
	"Content-Disposition": true,
}

func copyHeaders(dst, src http.Header) {
	dropped := make(map[string]bool)
	for _, v := range src.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			dropped[http.CanonicalHeaderKey(strings.TrimSpace(tok))] = true
		}
	}
	for k, vs := range src {
		ck := http.CanonicalHeaderKey(k)
		if hopByHop[ck] || dropped[ck] {
			continue
		}
		for _, v := range vs {
			dst.Add(ck, v)
		}
	}
}

// resolveFilename picks the explicit name, then the upstream
// Content-Disposition filename, then the last path segment.
func resolveFilename(explicit, disposition string, u *url.URL) string {
	if strings.TrimSpace(explicit) != "" {
		return httputil.SanitizeFilename(explicit)
	}
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return httputil.SanitizeFilename(params["filename"])
		}
	}
	if u != nil {
		if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
			return httputil.SanitizeFilename(base)
		}
	}
	return httputil.FallbackFilename
}

func copyBody(w http.ResponseWriter, r io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
