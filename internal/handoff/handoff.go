// Package handoff stores prepared download jobs under short-lived opaque ids,
// bridging the prepare call and the streaming call that follows it.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"getbox/internal/media"
)

// ErrNotFound is returned for ids that were never issued, have expired or
// were evicted.
var ErrNotFound = errors.New("download link expired or invalid")

// Store holds jobs until they expire. Implementations are safe for
// concurrent use.
type Store interface {
	Put(ctx context.Context, job media.Job) (string, error)
	Get(ctx context.Context, id string) (media.Job, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Policy bounds how long and how many jobs are kept.
type Policy struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultPolicy keeps jobs for an hour, at most 2000 of them.
func DefaultPolicy() Policy {
	return Policy{TTL: time.Hour, MaxEntries: 2000}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TTL <= 0 {
		p.TTL = d.TTL
	}
	if p.MaxEntries <= 0 {
		p.MaxEntries = d.MaxEntries
	}
	return p
}

func (p Policy) expired(created, now time.Time) bool {
	return now.Sub(created) > p.TTL
}

// Option customizes a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newID() string { return uuid.NewString() }

// validID rejects anything that is not a UUID before it reaches a backend.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// Config selects and configures a backend.
type Config struct {
	Driver     string // memory, redis or sqlite
	RedisURL   string
	SQLitePath string
	Policy     Policy
}

// Open returns the store described by cfg.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.Policy, opts...), nil
	case "redis":
		return NewRedis(ctx, cfg.RedisURL, cfg.Policy, opts...)
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLitePath, cfg.Policy, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
