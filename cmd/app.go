package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"getbox/internal/binaries"
	"getbox/internal/config"
	"getbox/internal/download"
	"getbox/internal/extract"
	"getbox/internal/handoff"
	"getbox/internal/httputil"
	"getbox/internal/proxy"
	"getbox/internal/ratelimit"
	"getbox/internal/server"
	"getbox/internal/ssrf"
)

// tools holds the resolved external binary paths.
type tools struct {
	ffmpeg string
	ytdlp  string
}

func locateTools(c *config.Config, loc *binaries.Locator) tools {
	return tools{
		ffmpeg: loc.FFmpeg(c.FFmpegPath),
		ytdlp:  loc.YtDlp(c.YtDlpPath),
	}
}

// newResolver wires the platform router with the yt-dlp fallback.
func newResolver(c *config.Config, t tools, log *logrus.Entry, observe func(platform, outcome string)) *extract.Resolver {
	yt := extract.NewYtDlp(t.ytdlp, t.ffmpeg)
	return extract.NewResolver(extract.ResolverConfig{
		Router:   extract.NewRouter(extract.DefaultRoutes(yt)...),
		Fallback: yt,
		Timeout:  c.ResolveTimeout,
		Log:      log,
		Observe:  observe,
	})
}

// newStore opens the configured job store.
func newStore(ctx context.Context, c *config.Config) (handoff.Store, error) {
	hc := handoff.Config{
		Driver:   strings.ToLower(c.Store),
		RedisURL: c.RedisURL,
		Policy:   handoff.Policy{TTL: c.JobTTL, MaxEntries: c.JobMaxEntries},
	}
	if hc.Driver == "sqlite" {
		p, err := c.ExpandSQLitePath()
		if err != nil {
			return nil, err
		}
		hc.SQLitePath = p
	}
	st, err := handoff.Open(ctx, hc)
	if err != nil {
		return nil, fmt.Errorf("opening %s job store: %w", hc.Driver, err)
	}
	return st, nil
}

// newServer assembles the HTTP server from configuration.
func newServer(ctx context.Context, c *config.Config, log *logrus.Entry) (*server.Server, handoff.Store, error) {
	t := locateTools(c, binaries.NewLocator())
	log.WithFields(logrus.Fields{"ffmpeg": t.ffmpeg, "yt-dlp": t.ytdlp}).Debug("tools located")

	metrics := server.NewMetrics()
	resolver := newResolver(c, t, log, metrics.ObserveResolution)

	store, err := newStore(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	guard := ssrf.New(nil, log)
	pipeline := download.New(t.ffmpeg, log.WithField("component", "ffmpeg"))
	pipeline.ReconnectDelayMax = c.ReconnectDelayMax
	pipeline.AudioBitrate = c.AudioBitrate

	srv := server.NewServer(resolver,
		server.WithLogger(log.WithField("component", "http")),
		server.WithGuard(guard),
		server.WithStore(store),
		server.WithLimiter(ratelimit.New(c.RateLimitRPM)),
		server.WithProxy(proxy.New(httputil.NewStreamingClient(guard.Control), guard, log)),
		server.WithPipeline(pipeline),
		server.WithMetrics(metrics),
	)
	return srv, store, nil
}
