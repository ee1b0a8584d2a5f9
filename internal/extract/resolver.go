package extract

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"getbox/internal/media"
)

// Resolution outcomes reported to Observe.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// ResolverConfig wires a Resolver.
type ResolverConfig struct {
	Router   *Router
	Fallback Extractor
	Timeout  time.Duration
	Log      *logrus.Entry

	// Observe, when set, is called once per extractor attempt.
	Observe func(platform, outcome string)
}

// Resolver turns a URL into a normalized Result: the routed extractor
// first, then the fallback. Resolutions share one client so connections
// are reused.
type Resolver struct {
	router   *Router
	fallback Extractor
	client   *http.Client
	log      *logrus.Entry
	observe  func(platform, outcome string)
}

// NewResolver creates a Resolver from cfg.
func NewResolver(cfg ResolverConfig) *Resolver {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	observe := cfg.Observe
	if observe == nil {
		observe = func(string, string) {}
	}
	router := cfg.Router
	if router == nil {
		router = NewRouter()
	}
	return &Resolver{
		router:   router,
		fallback: cfg.Fallback,
		client:   newClient(cfg.Timeout),
		log:      log.WithField("component", "resolver"),
		observe:  observe,
	}
}

// Resolve returns the items for rawURL. It fails only once every strategy
// is exhausted, with *ExtractionError or *PlatformNotSupportedError.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*media.Result, error) {
	ec := newContext(r.client, r.log)
	log := r.log.WithField("host", hostOf(rawURL))

	ext, routed := r.router.Route(rawURL)
	if routed {
		res, err := r.attempt(ctx, ext, rawURL, ec)
		if err == nil {
			return res, nil
		}
		log.WithError(err).WithField("platform", ext.Name()).Warn("extractor failed")
		if r.fallback == nil || ext.Name() == r.fallback.Name() {
			return nil, &ExtractionError{Platform: "generic", Message: message(err), Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if r.fallback == nil {
		return nil, &PlatformNotSupportedError{URL: rawURL}
	}

	res, err := r.attempt(ctx, r.fallback, rawURL, ec)
	if err != nil {
		log.WithError(err).Warn("fallback failed")
		if !routed && errors.Is(err, ErrUnsupported) {
			return nil, &PlatformNotSupportedError{URL: rawURL}
		}
		return nil, &ExtractionError{Platform: "generic", Message: message(err), Err: err}
	}
	return res, nil
}

func (r *Resolver) attempt(ctx context.Context, ext Extractor, rawURL string, ec *Context) (*media.Result, error) {
	res, err := ext.Resolve(ctx, rawURL, ec)
	if err == nil && res == nil {
		err = errors.New("extractor returned no result")
	}
	if err == nil {
		raw := len(res.URLs)
		res.URLs = media.NormalizeAll(res.URLs)
		if raw > 0 && len(res.URLs) == 0 {
			err = errors.New("no usable media locators")
		}
	}
	if err != nil {
		r.observe(ext.Name(), OutcomeFailed)
		return nil, failure(ext.Name(), err)
	}

	if res.Meta.Platform == "" {
		res.Meta.Platform = ext.Name()
	}
	r.observe(ext.Name(), OutcomeOK)
	return res, nil
}
