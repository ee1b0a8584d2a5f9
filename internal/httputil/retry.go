package httputil

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// IsRetryableStatus reports whether an upstream status is worth retrying.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do sends a request with exponential backoff on transport errors and
// retryable statuses. Only a 2xx response is returned; the caller owns its body.
func Do(ctx context.Context, client *http.Client, newReq RequestFunc) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &NetworkError{URL: req.URL.String(), Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		resp.Body.Close()

		statusErr := &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
		if IsRetryableStatus(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(15*time.Second),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Unwrap()
		}
		return nil, err
	}
	return resp, nil
}
