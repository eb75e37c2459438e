package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/metal-price-harvester/internal/metrics"
)

// Options wires the collaborators of an Orchestrator.
type Options struct {
	Fetcher Fetcher
	Store   SnapshotStore
	Filter  PageFilter
	Limiter Limiter
	Retry   RetryPolicy
	Hasher  Hasher
	Clock   Clock
	Pauser  Pauser
	Logger  *zap.Logger
	// Proxies enables rotation in the fetcher for every target.
	Proxies []string
	// MaxInFlight caps concurrent tasks on top of the limiter. Zero means no cap.
	MaxInFlight int64
	Progress    Progress
}

// Orchestrator fans out one fetch-and-persist task per target.
type Orchestrator struct {
	fetcher  Fetcher
	store    SnapshotStore
	filter   PageFilter
	limiter  Limiter
	retry    RetryPolicy
	hasher   Hasher
	clock    Clock
	pauser   Pauser
	logger   *zap.Logger
	proxies  []string
	inFlight *semaphore.Weighted
	progress Progress
}

type taskResult struct {
	outcome  Outcome
	snapshot Snapshot
}

// NewOrchestrator validates opts and fills defaults for optional collaborators.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("orchestrator requires a fetcher")
	}
	if opts.Store == nil {
		return nil, errors.New("orchestrator requires a snapshot store")
	}
	if opts.Filter == nil {
		return nil, errors.New("orchestrator requires a page filter")
	}
	if opts.Limiter == nil {
		return nil, errors.New("orchestrator requires a limiter")
	}
	o := &Orchestrator{
		fetcher:  opts.Fetcher,
		store:    opts.Store,
		filter:   opts.Filter,
		limiter:  opts.Limiter,
		retry:    opts.Retry,
		hasher:   opts.Hasher,
		clock:    opts.Clock,
		pauser:   opts.Pauser,
		logger:   opts.Logger,
		proxies:  append([]string(nil), opts.Proxies...),
		progress: opts.Progress,
	}
	if o.retry == nil {
		o.retry = NewFixedRetryPolicy(defaultMaxAttempts, defaultRetryDelay)
	}
	if o.clock == nil {
		o.clock = utcClock{}
	}
	if o.pauser == nil {
		o.pauser = TimerPauser{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if opts.MaxInFlight > 0 {
		o.inFlight = semaphore.NewWeighted(opts.MaxInFlight)
	}
	return o, nil
}

// Run processes every target and waits for all of them. Per-target failures are
// logged and counted, never returned.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) RunSummary {
	startedAt := o.clock.Now()
	results := make([]taskResult, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.process(ctx, target)
			if o.progress != nil {
				_ = o.progress.Add(1)
			}
		}()
	}
	wg.Wait()

	summary := RunSummary{Targets: len(targets), StartedAt: startedAt}
	for _, res := range results {
		summary.record(res.outcome)
		if res.outcome == OutcomeAccepted {
			summary.Snapshots = append(summary.Snapshots, res.snapshot)
		}
	}
	summary.Duration = o.clock.Now().Sub(startedAt)
	o.logger.Info("crawl finished",
		zap.Int("targets", summary.Targets),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
		zap.Int("blocked", summary.Blocked),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}

func (o *Orchestrator) process(ctx context.Context, target Target) taskResult {
	logger := o.logger.With(zap.String("url", target.URL))
	if o.inFlight != nil {
		if err := o.inFlight.Acquire(ctx, 1); err != nil {
			logger.Warn("task slot not acquired", zap.Error(err))
			return o.finish(target, OutcomeFailed, 0)
		}
		defer o.inFlight.Release(1)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		logger.Warn("rate limiter wait aborted", zap.Error(err))
		return o.finish(target, OutcomeFailed, 0)
	}

	resp, err := o.fetchWithRetry(ctx, target)
	if err != nil {
		outcome := classify(err)
		logger.Warn("target skipped", zap.String("outcome", string(outcome)), zap.Error(err))
		return o.finish(target, outcome, 0)
	}

	if !o.filter.AcceptPage(string(resp.Body)) {
		logger.Debug("page rejected by filter")
		return o.finish(target, OutcomeRejected, len(resp.Body))
	}

	snapshot, err := o.store.Put(ctx, SnapshotName(target, o.hasher), target.URL, resp.Body)
	if err != nil {
		logger.Error("persist snapshot", zap.Error(err))
		return o.finish(target, OutcomeFailed, len(resp.Body))
	}
	logger.Debug("snapshot stored", zap.String("path", snapshot.Path))
	res := o.finish(target, OutcomeAccepted, len(resp.Body))
	res.snapshot = snapshot
	return res
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, target Target) (FetchResponse, error) {
	request := FetchRequest{URL: target.URL, Accept: target.Accept, Proxies: o.proxies}
	for attempt := 1; ; attempt++ {
		metrics.ObserveFetchAttempt(target.URL)
		resp, err := o.fetcher.Fetch(ctx, request)
		if err == nil {
			return resp, nil
		}
		if !o.retry.ShouldRetry(err, attempt) {
			return FetchResponse{}, fmt.Errorf("fetch after %d attempt(s): %w", attempt, err)
		}
		delay := o.retry.Backoff(attempt)
		o.logger.Debug("retrying fetch",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		o.pauser.Pause(ctx, delay)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctxErr)
		}
	}
}

func (o *Orchestrator) finish(target Target, outcome Outcome, size int) taskResult {
	metrics.ObserveTarget(target.URL, string(outcome), size)
	return taskResult{outcome: outcome}
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}
