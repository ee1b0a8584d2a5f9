// Package ratelimit gates requests per client identity with token buckets.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FallbackIdentity is used when a request carries no forwarding headers.
const FallbackIdentity = "local"

// idleAfter is how long an untouched bucket survives before pruning.
const idleAfter = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter allows rpm requests per minute per identity, with a burst of rpm.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastPrune time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter admitting rpm requests per minute per identity.
// rpm <= 0 disables limiting.
func New(rpm int, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Inf,
		now:     time.Now,
	}
	if rpm > 0 {
		l.limit = rate.Limit(float64(rpm) / 60)
		l.burst = rpm
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether identity may make another request now.
func (l *Limiter) Allow(identity string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > idleAfter {
		l.pruneLocked(now)
	}
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identity] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *Limiter) pruneLocked(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.seen) > idleAfter {
			delete(l.buckets, id)
		}
	}
	l.lastPrune = now
}

// Len reports the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Identity derives the client identity: the first X-Forwarded-For entry,
// then X-Real-IP, then FallbackIdentity.
func Identity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return FallbackIdentity
}
