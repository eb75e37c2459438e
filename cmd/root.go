// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/app"
	"github.com/JakeFAU/metal-price-harvester/internal/config"
	"github.com/JakeFAU/metal-price-harvester/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the commands need from the application. Tests inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Crawl(ctx context.Context, opts app.CrawlOptions) (app.Summary, error)
	Extract(ctx context.Context) (app.Summary, error)
	Proxies(ctx context.Context) ([]string, error)
	Discover(ctx context.Context) ([]string, error)
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configFile  string
	development bool
	noProgress  bool
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, opts rootOptions) (App, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development || opts.development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	var appOpts []app.Option
	if !opts.noProgress {
		appOpts = append(appOpts, app.WithProgress(newProgressBar))
	}
	return app.New(ctx, cfg, logger, appOpts...)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Collects and normalizes metal price lists from 23met.ru.",
		Long: `harvester crawls the price-list pages of 23met.ru, unifies their tables
into one dataset and classifies sizes, grades, standards and prices.
Optional stages find the price lists through a metered search API and
route requests through a pool of free proxies.`,
		SilenceUsage: true,

		// Build the application after flags are parsed but before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().BoolVar(&opts.development, "dev", false, "human-readable development logging")
	cmd.PersistentFlags().BoolVar(&opts.noProgress, "no-progress", false, "disable progress bars")

	cmd.AddCommand(newCrawlCmd(), newExtractCmd(), newProxiesCmd(), newDiscoverCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// withApp runs fn against the App built by the root command and closes the
// App afterwards, whether fn fails or not.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a App) error) error {
	appInstance, ok := cmd.Context().Value(appKey).(App)
	if !ok || appInstance == nil {
		return errors.New("application services not initialized")
	}
	defer appInstance.Close()
	return fn(cmd.Context(), appInstance)
}
