// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"getbox/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig    string
	flagListen    string
	flagStore     string
	flagRateLimit int
	flagLogLevel  string
	flagLogFormat string
	flagDebug     bool
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

// logger is configured from cfg before any command runs.
var logger = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "getbox",
	Short: "Resolve and stream media from social platforms",
	Long: `GetBox turns social media post URLs into direct downloads.
It resolves posts through per-platform extractors with a yt-dlp fallback and
serves an HTTP API that proxies, remuxes or transcodes the results.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/getbox/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagListen, "listen", "", "Listen address, e.g. :8080")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Job store: memory | redis | sqlite")
	rootCmd.PersistentFlags().IntVar(&flagRateLimit, "rate-limit", 0, "Requests per minute per client (0 disables)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: trace | debug | info | warn | error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text | json")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	flags := cmd.Flags()
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}
	if flagStore != "" {
		cfg.Store = flagStore
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimitRPM = flagRateLimit
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(logger, cfg)
	return nil
}

// setupLogging applies the configured level and format to log.
func setupLogging(log *logrus.Logger, c *config.Config) {
	log.SetOutput(os.Stderr)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if c.Debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
}
