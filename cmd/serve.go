package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logrus.NewEntry(logger)
	srv, store, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	log.WithFields(logrus.Fields{
		"store":      cfg.Store,
		"rate_limit": cfg.RateLimitRPM,
		"version":    Version,
	}).Info("starting getbox")
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}

// background returns the command context or a fresh one when run outside
// Execute, as in tests.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
