package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"getbox/internal/ratelimit"
)

// statusRecorder captures the status code while keeping Flush reachable for
// streaming handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func loggingMiddleware(log *logrus.Entry, m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.observeRequest(route, strconv.Itoa(status))

			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   status,
				"bytes":    rec.bytes,
				"duration": time.Since(start).Round(time.Millisecond).String(),
				"identity": ratelimit.Identity(r),
			})
			if p := recover(); p != nil {
				entry.WithField("panic", p).Warn("request aborted")
				panic(p)
			}
			entry.Info("request")
		}()
		next.ServeHTTP(rec, r)
	})
}

// limited rejects requests from identities over their rate limit.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(ratelimit.Identity(r)) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		h(w, r)
	})
}
