// Package httputil provides security-hardened HTTP clients and input sanitization utilities.
package httputil

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// DefaultUserAgent is sent upstream when an item carries no user agent of its own.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// MaxBodySize bounds every body read into memory.
const MaxBodySize = 10 * 1024 * 1024

// DialControl inspects a connection's remote address before it is established.
type DialControl func(network, address string, c syscall.RawConn) error

// NewClient creates a hardened HTTP client with secure defaults.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(nil),
	}
}

// NewStreamingClient creates a client for long transfers: no overall timeout,
// a bounded wait for response headers, and an optional dial-time address check.
func NewStreamingClient(control DialControl) *http.Client {
	t := newTransport(control)
	t.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: t}
}

func newTransport(control DialControl) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   control,
	}
	return &http.Transport{
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  false,
		MaxIdleConnsPerHost: 5,
	}
}

// SetBrowserHeaders applies the default browser-like request headers.
func SetBrowserHeaders(req *http.Request, accept string) {
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
}

// ReadBody reads at most MaxBodySize bytes of a response body and closes it.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// DecodeJSON reads a response body and unmarshals it into v.
func DecodeJSON(resp *http.Response, v any) error {
	body, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding JSON from %s: %w", resp.Request.URL.Host, err)
	}
	return nil
}
