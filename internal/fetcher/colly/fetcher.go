// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
)

// DefaultBlockMarker is the throttling page text served by 23met.ru.
const DefaultBlockMarker = "Слишком много запросов"

// Config controls collector behavior.
type Config struct {
	Timeout     time.Duration
	CooldownMin time.Duration
	CooldownMax time.Duration
	BlockMarker string
	// Referer is sent on proxied attempts only.
	Referer    string
	UserAgents []string
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithPauser replaces the cooldown sleeper.
func WithPauser(p crawler.Pauser) Option {
	return func(f *Fetcher) { f.pauser = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport *http.Transport
	proxies   sync.Map // proxy URL -> *http.Transport
	headers   *headerSource
	pauser    crawler.Pauser
	logger    *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BlockMarker == "" {
		cfg.BlockMarker = DefaultBlockMarker
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(nil),
		headers:   newHeaderSource(cfg.UserAgents, cfg.Referer),
		pauser:    crawler.TimerPauser{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch executes one GET, or one GET per proxy until one succeeds when the
// request carries a proxy pool.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if len(request.Proxies) > 0 {
		return f.fetchViaProxies(ctx, request)
	}
	return f.fetchDirect(ctx, request)
}

func (f *Fetcher) fetchDirect(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.attempt(ctx, request, "", f.transport)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if f.isBlocked(resp) {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, crawler.ErrBlockedByTarget)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, &crawler.StatusError{Code: resp.StatusCode})
	}
	f.cooldown(ctx)
	return resp, nil
}

func (f *Fetcher) fetchViaProxies(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for _, proxy := range request.Proxies {
		transport, err := f.proxyTransport(proxy)
		if err != nil {
			f.logger.Warn("skipping malformed proxy", zap.String("proxy", proxy), zap.Error(err))
			continue
		}
		resp, err := f.attempt(ctx, request, proxy, transport)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctxErr)
		}
		if err != nil {
			f.logger.Debug("proxy attempt failed", zap.String("proxy", proxy), zap.Error(err))
			continue
		}
		if f.isBlocked(resp) || resp.StatusCode < 200 || resp.StatusCode > 299 {
			f.logger.Debug("proxy attempt rejected",
				zap.String("proxy", proxy),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}
		resp.Proxy = proxy
		f.cooldown(ctx)
		return resp, nil
	}
	return crawler.FetchResponse{}, fmt.Errorf("fetch %s via %d proxies: %w",
		request.URL, len(request.Proxies), crawler.ErrNoWorkingProxy)
}

func (f *Fetcher) attempt(
	ctx context.Context,
	request crawler.FetchRequest,
	proxy string,
	transport http.RoundTripper,
) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(transport)
	f.configureCollectorHooks(collector, start, &result, &fetchErr)
	hdr := f.headers.build(request.Accept, proxy != "", request.Headers)
	if err := f.runCollector(ctx, collector, request.URL, hdr, &fetchErr); err != nil {
		return crawler.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(transport http.RoundTripper) *colly.Collector {
	// A fresh collector per attempt: clones share one http.Client, so swapping
	// transports on a clone would leak proxies across concurrent tasks.
	collector := colly.NewCollector()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.DetectCharset = true
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(transport)
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	rawURL string,
	hdr http.Header,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(http.MethodGet, rawURL, nil, nil, hdr)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			return fmt.Errorf("%w: get %s: %w", crawler.ErrTransport, rawURL, err)
		}
		return nil
	}
}

func (f *Fetcher) isBlocked(resp crawler.FetchResponse) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return bytes.Contains(resp.Body, []byte(f.cfg.BlockMarker))
}

func (f *Fetcher) cooldown(ctx context.Context) {
	f.pauser.Pause(ctx, crawler.Jitter(f.cfg.CooldownMin, f.cfg.CooldownMax))
}

func (f *Fetcher) proxyTransport(proxy string) (*http.Transport, error) {
	if cached, ok := f.proxies.Load(proxy); ok {
		return cached.(*http.Transport), nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("proxy url needs scheme and host")
	}
	actual, _ := f.proxies.LoadOrStore(proxy, newHTTPTransport(u))
	return actual.(*http.Transport), nil
}

func newHTTPTransport(proxy *url.URL) *http.Transport {
	proxyFunc := http.ProxyFromEnvironment
	if proxy != nil {
		proxyFunc = http.ProxyURL(proxy)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
