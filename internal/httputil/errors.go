package httputil

import (
	"fmt"
	"net/url"
)

// NetworkError is an upstream transport failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", redactURL(e.URL), e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-success upstream status seen while extracting.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, redactURL(e.URL))
}

// redactURL drops the query string, which often carries signed tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
