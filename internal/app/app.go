// Package app builds the long-lived services of a harvester run and composes
// the crawl, extraction, proxy and discovery pipelines from them.
package app

import (
	"context"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/clock/system"
	"github.com/JakeFAU/metal-price-harvester/internal/config"
	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
	"github.com/JakeFAU/metal-price-harvester/internal/hash/sha256"
	"github.com/JakeFAU/metal-price-harvester/internal/id/uuid"
	"github.com/JakeFAU/metal-price-harvester/internal/metrics"
	"github.com/JakeFAU/metal-price-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/metal-price-harvester/internal/storage/gcs"
	"github.com/JakeFAU/metal-price-harvester/internal/storage/postgres"
)

const snapshotDigestLength = 16

// RecordSaver persists a normalized table under a run ID.
type RecordSaver interface {
	SaveRun(ctx context.Context, runID string, table dataset.Table) error
}

// ProgressFactory returns a progress sink for a batch of total targets.
type ProgressFactory func(total int, description string) crawler.Progress

// App holds the shared services of one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	ids       crawler.IDGenerator
	clock     crawler.Clock
	hasher    crawler.Hasher
	uploader  crawler.BlobStore
	records   RecordSaver
	publisher crawler.Publisher
	progress  ProgressFactory
	metrics   *metrics.Server
	closers   []func()
}

// Option customizes an App.
type Option func(*App)

// WithUploader replaces the GCS uploader.
func WithUploader(u crawler.BlobStore) Option {
	return func(a *App) { a.uploader = u }
}

// WithRecordStore replaces the Postgres record store.
func WithRecordStore(r RecordSaver) Option {
	return func(a *App) { a.records = r }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithProgress installs a progress sink factory for crawl batches.
func WithProgress(f ProgressFactory) Option {
	return func(a *App) { a.progress = f }
}

// WithClock replaces the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New builds the App. Optional sinks are created only when configured and not
// injected through opts; a sink that fails to initialize aborts startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
		hasher: sha256.NewTruncated(snapshotDigestLength),
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.Init()

	if err := a.initSinks(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Metrics.Addr != "" {
		a.metrics = metrics.NewServer(cfg.Metrics.Addr, logger.Named("metrics"))
		a.metrics.Start()
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.metrics.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics server shutdown", zap.Error(err))
			}
		})
	}
	logger.Info("application services initialized",
		zap.Bool("gcs", a.uploader != nil),
		zap.Bool("postgres", a.records != nil),
		zap.Bool("pubsub", a.publisher != nil),
		zap.String("metrics_addr", cfg.Metrics.Addr),
	)
	return a, nil
}

func (a *App) initSinks(ctx context.Context) error {
	if a.uploader == nil && a.cfg.Output.Bucket != "" {
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		uploader, err := gcs.New(client, a.cfg.Output.Config, a.logger.Named("gcs"))
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init gcs uploader: %w", err)
		}
		a.uploader = uploader
		a.closers = append(a.closers, func() {
			if err := uploader.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
	}
	if a.records == nil && a.cfg.Database.URL != "" {
		store, err := postgres.NewRecordStore(ctx, a.cfg.Database, a.logger.Named("postgres"))
		if err != nil {
			return fmt.Errorf("init record store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.records = store
	}
	if a.publisher == nil && a.cfg.PubSub.Topic != "" {
		client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		pub, err := pubsub.New(client, a.cfg.PubSub.Topic, a.logger.Named("pubsub"))
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, func() {
			pub.Stop()
			if err := client.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
	}
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close releases every service in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync() // syncing stderr fails on some terminals
}
