package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"getbox/internal/httputil"
)

// DefaultTimeout bounds every HTTP call made during a resolution.
const DefaultTimeout = 20 * time.Second

// Context is shared by the extractors during one resolution.
type Context struct {
	Client    *http.Client
	UserAgent string
	Log       *logrus.Entry
}

// NewContext builds a Context whose client gives up after timeout.
func NewContext(timeout time.Duration, log *logrus.Entry) *Context {
	return newContext(newClient(timeout), log)
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return httputil.NewClient(timeout)
}

func newContext(client *http.Client, log *logrus.Entry) *Context {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Context{
		Client:    client,
		UserAgent: httputil.DefaultUserAgent,
		Log:       log,
	}
}

// Do sends one request, with retries, and returns the 2xx response.
func (c *Context) Do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*http.Response, error) {
	if err := httputil.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	c.Log.WithFields(logrus.Fields{"method": method, "host": hostOf(rawURL)}).Debug("upstream request")

	return httputil.Do(ctx, c.Client, func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, r)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.UserAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (c *Context) GetJSON(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	resp, err := c.Do(ctx, http.MethodGet, rawURL, nil, withDefault(headers, "Accept", "application/json"))
	if err != nil {
		return err
	}
	return httputil.DecodeJSON(resp, v)
}

// PostForm posts form-encoded values and decodes the JSON reply into v.
func (c *Context) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string, v any) error {
	headers = withDefault(headers, "Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.Do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), headers)
	if err != nil {
		return err
	}
	return httputil.DecodeJSON(resp, v)
}

// PostJSON posts payload as JSON and decodes the JSON reply into v.
func (c *Context) PostJSON(ctx context.Context, rawURL string, payload any, headers map[string]string, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	headers = withDefault(headers, "Content-Type", "application/json")
	resp, err := c.Do(ctx, http.MethodPost, rawURL, body, headers)
	if err != nil {
		return err
	}
	return httputil.DecodeJSON(resp, v)
}

// GetPage fetches an HTML page and returns the parsed document together with
// the cookies the origin set on it.
func (c *Context) GetPage(ctx context.Context, rawURL string, headers map[string]string) (*goquery.Document, []*http.Cookie, error) {
	headers = withDefault(headers, "Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	resp, err := c.Do(ctx, http.MethodGet, rawURL, nil, headers)
	if err != nil {
		return nil, nil, err
	}
	cookies := resp.Cookies()
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, cookies, nil
}

// cookieHeader joins cookies into a single Cookie header value.
func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func withDefault(headers map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	out[key] = value
	for k, v := range headers {
		out[k] = v
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
