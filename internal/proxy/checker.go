package proxy

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
	"github.com/JakeFAU/metal-price-harvester/internal/metrics"
)

// Checker tests proxies by fetching a known page through each one.
type Checker struct {
	fetcher crawler.Fetcher
	limiter crawler.Limiter
	url     string
	workers int
	logger  *zap.Logger
}

// NewChecker builds a Checker that probes checkURL. The fetcher should carry
// the short check timeout and no cooldown.
func NewChecker(fetcher crawler.Fetcher, limiter crawler.Limiter, checkURL string, workers int, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Checker{fetcher: fetcher, limiter: limiter, url: checkURL, workers: workers, logger: logger}
}

// Alive reports whether checkURL answers 200 through proxy.
func (c *Checker) Alive(ctx context.Context, proxy string) bool {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false
		}
	}
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: c.url, Proxies: []string{proxy}})
	alive := err == nil && resp.StatusCode == http.StatusOK
	metrics.ObserveProxyCheck(alive)
	if alive {
		c.logger.Debug("proxy alive", zap.String("proxy", proxy))
	} else {
		c.logger.Debug("proxy dead", zap.String("proxy", proxy), zap.Error(err))
	}
	return alive
}

// Filter returns the live proxies of proxies, keeping their order.
func (c *Checker) Filter(ctx context.Context, proxies []string) []string {
	alive := make([]bool, len(proxies))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, p := range proxies {
		g.Go(func() error {
			alive[i] = c.Alive(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(proxies))
	for i, p := range proxies {
		if alive[i] {
			out = append(out, p)
		}
	}
	return out
}
