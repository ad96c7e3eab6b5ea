// Package cmd defines the CLI commands for the degree-indexer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/api"
	"github.com/JakeFAU/degree-indexer/internal/app"
	"github.com/JakeFAU/degree-indexer/internal/config"
	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of *app.App the commands use. Tests inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	RunWithSummary(ctx context.Context) (crawler.AggregatedResult, crawler.RunSummary, error)
	Server() *api.Server
	SweepLimiters(ctx context.Context, interval time.Duration)
}

type liveApp struct {
	*app.App
}

func (l liveApp) RunWithSummary(ctx context.Context) (crawler.AggregatedResult, crawler.RunSummary, error) {
	return l.Orchestrator().RunWithSummary(ctx)
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return liveApp{App: a}, nil
}

type rootOptions struct {
	cfgFile string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "degree-indexer",
		Short: "Scrapes a university's degree programs into a retrieval index.",
		Long: `degree-indexer fetches a university's degree listing page, extracts a
structured record from every program page, and republishes the records into a
retrieval index. Run it once with "scrape" or keep it up with "serve".`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML); INDEXER_* environment variables override it")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signalContext()
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
