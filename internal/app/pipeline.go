package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
	"github.com/JakeFAU/metal-price-harvester/internal/discovery"
	"github.com/JakeFAU/metal-price-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/metal-price-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/metal-price-harvester/internal/filter"
	"github.com/JakeFAU/metal-price-harvester/internal/ledger"
	"github.com/JakeFAU/metal-price-harvester/internal/normalize"
	"github.com/JakeFAU/metal-price-harvester/internal/output"
	"github.com/JakeFAU/metal-price-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/metal-price-harvester/internal/proxy"
	"github.com/JakeFAU/metal-price-harvester/internal/storage/local"
)

// CrawlOptions selects the optional stages of a crawl.
type CrawlOptions struct {
	// Refresh re-fetches the cached URL list and skips discovery.
	Refresh bool
	// Discover searches for price lists before crawling.
	Discover bool
	// WithProxy routes fetches through a freshly acquired proxy pool.
	WithProxy bool
	// Cleanup purges the fetched pages once the tables are written.
	Cleanup bool
}

// Summary describes one run. It is logged and published as the run event.
type Summary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Discovered int           `json:"discovered"`
	URLs       int           `json:"urls"`
	Proxies    int           `json:"proxies"`
	Targets    int           `json:"targets"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Failed     int           `json:"failed"`
	Blocked    int           `json:"blocked"`
	Pages      int           `json:"pages"`
	Rows       crawler.Stats `json:"rows"`
	Records    int           `json:"records"`
	Unusable   []string      `json:"unusable"`
	Outputs    []string      `json:"outputs"`
}

// Crawl runs the full pipeline: optional discovery, optional proxy pool,
// the site crawl, extraction, normalization and the configured sinks.
func (a *App) Crawl(ctx context.Context, opts CrawlOptions) (Summary, error) {
	summary, err := a.begin()
	if err != nil {
		return Summary{}, err
	}
	logger := a.logger.With(zap.String("run_id", summary.RunID))

	searchStore, err := local.New(local.Config{BaseDir: a.cfg.Discovery.Dir}, a.clock)
	if err != nil {
		return Summary{}, fmt.Errorf("open discovery store: %w", err)
	}
	var urls []string
	if opts.Discover && !opts.Refresh {
		urls, err = a.discover(ctx, searchStore)
		if err != nil {
			logger.Warn("discovery failed, falling back to cached url list", zap.Error(err))
		}
		summary.Discovered = len(urls)
	}
	if len(urls) == 0 {
		urls, err = discovery.LoadURLList(ctx, searchStore, a.cfg.Crawl.URLsFile)
		if err != nil {
			return Summary{}, fmt.Errorf("load url list: %w", err)
		}
	}
	summary.URLs = len(urls)
	logger.Info("url list ready", zap.Int("urls", len(urls)))

	var proxies []string
	if opts.WithProxy || a.cfg.Crawl.WithProxy {
		proxies = a.proxyPool(ctx, logger)
		summary.Proxies = len(proxies)
	}

	pages, err := local.New(local.Config{BaseDir: a.cfg.Crawl.SnapshotDir}, a.clock)
	if err != nil {
		return Summary{}, fmt.Errorf("open snapshot store: %w", err)
	}
	pageFilter, err := filter.New(a.cfg.Filter)
	if err != nil {
		return Summary{}, fmt.Errorf("build filter: %w", err)
	}
	targets, skipped := crawler.BuildTargets(urls, "*/*", a.hasher)
	if len(skipped) > 0 {
		logger.Warn("skipping malformed urls", zap.Strings("urls", skipped))
	}
	orch, err := crawler.NewOrchestrator(crawler.Options{
		Fetcher:     collyfetcher.New(a.cfg.Fetch.Collector(), collyfetcher.WithLogger(logger.Named("fetcher"))),
		Store:       pages,
		Filter:      pageFilter,
		Limiter:     ratelimit.New(a.cfg.RateLimit.Limiter()),
		Retry:       crawler.NewFixedRetryPolicy(a.cfg.Fetch.MaxAttempts, a.cfg.Fetch.RetryDelay),
		Hasher:      a.hasher,
		Clock:       a.clock,
		Logger:      logger.Named("crawler"),
		Proxies:     proxies,
		MaxInFlight: a.cfg.Crawl.MaxInFlight,
		Progress:    a.newProgress(len(targets), "price lists"),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("build orchestrator: %w", err)
	}
	crawled := orch.Run(ctx, targets)
	summary.Targets = crawled.Targets
	summary.Accepted = crawled.Accepted
	summary.Rejected = crawled.Rejected
	summary.Failed = crawled.Failed
	summary.Blocked = crawled.Blocked

	if err := a.process(ctx, &summary, pages, pageFilter, logger); err != nil {
		return summary, err
	}
	if opts.Cleanup || a.cfg.Crawl.Cleanup {
		if err := pages.Purge(ctx); err != nil {
			logger.Warn("purge snapshots", zap.Error(err))
		}
	}
	return a.finish(ctx, summary, logger), nil
}

// Extract re-runs extraction, normalization and the sinks over the pages
// already in the snapshot directory.
func (a *App) Extract(ctx context.Context) (Summary, error) {
	summary, err := a.begin()
	if err != nil {
		return Summary{}, err
	}
	logger := a.logger.With(zap.String("run_id", summary.RunID))
	pages, err := local.New(local.Config{BaseDir: a.cfg.Crawl.SnapshotDir}, a.clock)
	if err != nil {
		return Summary{}, fmt.Errorf("open snapshot store: %w", err)
	}
	pageFilter, err := filter.New(a.cfg.Filter)
	if err != nil {
		return Summary{}, fmt.Errorf("build filter: %w", err)
	}
	if err := a.process(ctx, &summary, pages, pageFilter, logger); err != nil {
		return summary, err
	}
	return a.finish(ctx, summary, logger), nil
}

// Proxies runs one proxy acquisition cycle and returns the pool.
func (a *App) Proxies(ctx context.Context) ([]string, error) {
	cfg := a.cfg.Proxy
	store, err := local.New(local.Config{BaseDir: cfg.Dir}, a.clock)
	if err != nil {
		return nil, fmt.Errorf("open proxy store: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{MaxRate: cfg.CheckRate, Period: cfg.CheckPeriod})
	listingFetch := a.cfg.Fetch.Collector()
	listingFetch.CooldownMin, listingFetch.CooldownMax = 0, 0
	orch, err := crawler.NewOrchestrator(crawler.Options{
		Fetcher:     collyfetcher.New(listingFetch, collyfetcher.WithLogger(a.logger.Named("proxy_fetcher"))),
		Store:       store,
		Filter:      filter.AcceptNonEmpty{},
		Limiter:     limiter,
		Retry:       crawler.NewFixedRetryPolicy(a.cfg.Fetch.MaxAttempts, a.cfg.Fetch.RetryDelay),
		Clock:       a.clock,
		Logger:      a.logger.Named("proxy_crawler"),
		MaxInFlight: int64(cfg.MaxTasks),
		Progress:    a.newProgress(cfg.MaxPages+1, "proxy listings"),
	})
	if err != nil {
		return nil, fmt.Errorf("build proxy orchestrator: %w", err)
	}

	var checker *proxy.Checker
	if cfg.CheckURL != "" {
		checkFetch := collyfetcher.Config{
			Timeout:     cfg.CheckTimeout,
			BlockMarker: a.cfg.Fetch.BlockMarker,
			Referer:     a.cfg.Fetch.Referer,
			UserAgents:  a.cfg.Fetch.UserAgents,
		}
		checker = proxy.NewChecker(
			collyfetcher.New(checkFetch, collyfetcher.WithLogger(a.logger.Named("proxy_checker"))),
			limiter, cfg.CheckURL, cfg.MaxTasks, a.logger.Named("proxy_checker"),
		)
	}
	pipeline, err := proxy.NewPipeline(cfg, orch, store, checker, a.logger.Named("proxy"))
	if err != nil {
		return nil, err
	}
	return pipeline.Refresh(ctx)
}

// Discover searches for price-list URLs and stores them as the URL list.
func (a *App) Discover(ctx context.Context) ([]string, error) {
	store, err := local.New(local.Config{BaseDir: a.cfg.Discovery.Dir}, a.clock)
	if err != nil {
		return nil, fmt.Errorf("open discovery store: %w", err)
	}
	return a.discover(ctx, store)
}

func (a *App) discover(ctx context.Context, store *local.Store) ([]string, error) {
	searchFetch := a.cfg.Fetch.Collector()
	searcher, err := discovery.NewSearcher(
		a.cfg.Discovery.Config,
		collyfetcher.New(searchFetch, collyfetcher.WithLogger(a.logger.Named("search_fetcher"))),
		ledger.NewFileLedger(a.cfg.Ledger.Path, a.cfg.Ledger.Cost),
		store,
		a.logger.Named("discovery"),
	)
	if err != nil {
		return nil, err
	}
	links, err := searcher.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, errors.New("discovery found no links, keeping the cached url list")
	}
	uri, err := discovery.WriteURLList(ctx, store, a.cfg.Crawl.URLsFile, links)
	if err != nil {
		return nil, err
	}
	a.logger.Info("url list written", zap.String("uri", uri), zap.Int("urls", len(links)))
	return links, nil
}

// proxyPool refreshes the pool and falls back to the last stored one. An
// empty result means direct fetching.
func (a *App) proxyPool(ctx context.Context, logger *zap.Logger) []string {
	pool, err := a.Proxies(ctx)
	if err == nil && len(pool) > 0 {
		return pool
	}
	if err != nil {
		logger.Warn("proxy refresh failed", zap.Error(err))
	}
	store, storeErr := local.New(local.Config{BaseDir: a.cfg.Proxy.Dir}, a.clock)
	if storeErr != nil {
		logger.Warn("open proxy store", zap.Error(storeErr))
		return nil
	}
	cached, loadErr := proxy.LoadPool(ctx, store)
	if loadErr != nil || len(cached) == 0 {
		logger.Warn("no working proxies, fetching directly", zap.Error(loadErr))
		return nil
	}
	logger.Info("using cached proxy pool", zap.Int("proxies", len(cached)))
	return cached
}

// process extracts the unified table, writes both CSVs and feeds the sinks.
func (a *App) process(ctx context.Context, summary *Summary, pages *local.Store, pageFilter *filter.Filter, logger *zap.Logger) error {
	snapshots, err := pages.List(ctx)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	extractor, err := extract.New(pages, pageFilter, a.cfg.Extract, logger.Named("extract"))
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}
	table, report, err := extractor.Run(ctx, snapshots)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	summary.Pages = len(report.Pages)
	summary.Rows = report.Stats
	summary.Unusable = report.Unusable

	artifacts, err := local.New(local.Config{BaseDir: a.cfg.Output.Dir}, a.clock)
	if err != nil {
		return fmt.Errorf("open output dir: %w", err)
	}
	if err := a.writeTable(ctx, summary, artifacts, a.cfg.Output.RawFile, table); err != nil {
		return err
	}
	if len(table.Records) == 0 {
		logger.Warn("no rows extracted, skipping normalization")
		return nil
	}

	normalized := normalize.NewEngine(logger.Named("normalize")).Apply(table)
	summary.Records = len(normalized.Records)
	if err := a.writeTable(ctx, summary, artifacts, a.cfg.Output.NormalizedFile, normalized); err != nil {
		return err
	}
	if a.records != nil {
		if err := a.records.SaveRun(ctx, summary.RunID, normalized); err != nil {
			return fmt.Errorf("save records: %w", err)
		}
	}
	return nil
}

func (a *App) writeTable(ctx context.Context, summary *Summary, artifacts *local.Store, name string, table dataset.Table) error {
	data, err := output.Encode(table)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	uri, err := artifacts.PutObject(ctx, name, output.ContentType, data)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	summary.Outputs = append(summary.Outputs, uri)
	if a.uploader != nil {
		remote, err := a.uploader.PutObject(ctx, name, output.ContentType, data)
		if err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
		summary.Outputs = append(summary.Outputs, remote)
	}
	return nil
}

func (a *App) begin() (Summary, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return Summary{}, err
	}
	return Summary{RunID: runID, StartedAt: a.clock.Now()}, nil
}

func (a *App) finish(ctx context.Context, summary Summary, logger *zap.Logger) Summary {
	summary.Duration = a.clock.Now().Sub(summary.StartedAt)
	logger.Info("run finished",
		zap.Int("targets", summary.Targets),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
		zap.Int("blocked", summary.Blocked),
		zap.Int("rows_total", summary.Rows.TotalRows),
		zap.Int("rows_filtered", summary.Rows.FilteredRows),
		zap.Int("records", summary.Records),
		zap.Strings("unusable", summary.Unusable),
		zap.Duration("duration", summary.Duration),
	)
	if a.publisher != nil {
		if _, err := a.publisher.Publish(ctx, summary); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("publish run summary", zap.Error(err))
		}
	}
	return summary
}

func (a *App) newProgress(total int, description string) crawler.Progress {
	if a.progress == nil || total <= 0 {
		return nil
	}
	return a.progress(total, description)
}
