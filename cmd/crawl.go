package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/app"
)

// newCrawlCmd creates the 'crawl' subcommand, the full pipeline.
func newCrawlCmd() *cobra.Command {
	var opts app.CrawlOptions
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the price lists and build both result tables",
		Long: `Fetches every URL of the cached URL list under the rate limit, keeps the
pages that look like 23met.ru price lists, then extracts and normalizes
their tables. With --discover the URL list is rebuilt through the search
API first; with --with-proxy requests rotate through a fresh proxy pool.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a App) error {
				summary, err := a.Crawl(ctx, opts)
				if err != nil {
					return err
				}
				a.Logger().Info("crawl command finished",
					zap.String("run_id", summary.RunID),
					zap.Int("records", summary.Records),
					zap.Strings("outputs", summary.Outputs),
				)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "re-fetch the cached URL list and skip discovery")
	cmd.Flags().BoolVar(&opts.Discover, "discover", false, "rebuild the URL list through the search API first")
	cmd.Flags().BoolVar(&opts.WithProxy, "with-proxy", false, "route requests through a fresh proxy pool")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "delete fetched pages once the tables are written")
	return cmd
}

// newExtractCmd creates the 'extract' subcommand, which re-processes stored pages.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Rebuild both result tables from the pages already on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a App) error {
				summary, err := a.Extract(ctx)
				if err != nil {
					return err
				}
				a.Logger().Info("extract command finished",
					zap.String("run_id", summary.RunID),
					zap.Int("pages", summary.Pages),
					zap.Int("records", summary.Records),
				)
				return nil
			})
		},
	}
}

// newProxiesCmd creates the 'proxies' subcommand.
func newProxiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxies",
		Short: "Scrape, check and store a fresh proxy pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a App) error {
				pool, err := a.Proxies(ctx)
				if err != nil {
					return err
				}
				a.Logger().Info("proxies command finished", zap.Int("proxies", len(pool)))
				return nil
			})
		},
	}
}

// newDiscoverCmd creates the 'discover' subcommand.
func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find price-list URLs through the search API and store the URL list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a App) error {
				links, err := a.Discover(ctx)
				if err != nil {
					return err
				}
				a.Logger().Info("discover command finished", zap.Int("urls", len(links)))
				return nil
			})
		},
	}
}
