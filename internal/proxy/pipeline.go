package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
)

// Artifact names written next to the listing pages.
const (
	PoolFile     = "proxy.json"
	SettingsFile = "update_setting.json"
)

// Config describes one refresh cycle.
type Config struct {
	BaseURL         string        `mapstructure:"base_url"`
	Dir             string        `mapstructure:"dir"`
	Protocol        string        `mapstructure:"protocol"`
	MaxPages        int           `mapstructure:"max_pages"`
	MaxTasks        int           `mapstructure:"max_tasks"`
	DeletePageFiles bool          `mapstructure:"delete_page_files"`
	CheckURL        string        `mapstructure:"check_url"`
	CheckTimeout    time.Duration `mapstructure:"check_timeout"`
	CheckRate       int           `mapstructure:"check_rate"`
	CheckPeriod     time.Duration `mapstructure:"check_period"`
}

// Settings records the parameters that produced a pool.
type Settings struct {
	BaseURL         string `json:"base_url"`
	DirName         string `json:"dir_name"`
	Protocol        string `json:"protocol"`
	MaxPages        int    `json:"max_pages"`
	MaxTasks        int    `json:"max_tasks"`
	DeletePageFiles bool   `json:"delete_page_files"`
}

// Crawler fetches listing pages into snapshots.
type Crawler interface {
	Run(ctx context.Context, targets []crawler.Target) crawler.RunSummary
}

// Store holds listing snapshots and the pool artifacts.
type Store interface {
	crawler.BlobStore
	Read(ctx context.Context, snapshot crawler.Snapshot) ([]byte, error)
	Purge(ctx context.Context) error
}

// ObjectReader reads artifacts back.
type ObjectReader interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Pipeline runs one proxy refresh: crawl listings, extract sockets, check them
// and persist the pool.
type Pipeline struct {
	cfg     Config
	crawler Crawler
	store   Store
	checker *Checker
	logger  *zap.Logger
}

// NewPipeline wires a Pipeline. checker may be nil to skip liveness checks.
func NewPipeline(cfg Config, c Crawler, store Store, checker *Checker, logger *zap.Logger) (*Pipeline, error) {
	if c == nil {
		return nil, errors.New("proxy pipeline requires a crawler")
	}
	if store == nil {
		return nil, errors.New("proxy pipeline requires a store")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("proxy pipeline requires a base url")
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("max pages must be >= 0, got %d", cfg.MaxPages)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Protocol = strings.ToUpper(strings.TrimSpace(cfg.Protocol))
	if cfg.Protocol == "" {
		cfg.Protocol = "HTTPS"
	}
	return &Pipeline{cfg: cfg, crawler: c, store: store, checker: checker, logger: logger}, nil
}

// ListingTargets returns one target per listing page, 0 through MaxPages.
func ListingTargets(baseURL string, maxPages int) []crawler.Target {
	base := strings.TrimRight(baseURL, "/")
	targets := make([]crawler.Target, 0, maxPages+1)
	for n := 0; n <= maxPages; n++ {
		targets = append(targets, crawler.Target{
			URL:    fmt.Sprintf("%s/?proxy_page=%d", base, n),
			Accept: "*/*",
			Name:   fmt.Sprintf("Page%d.html", n),
		})
	}
	return targets
}

// Refresh runs a full cycle and returns the stored proxy URLs.
func (p *Pipeline) Refresh(ctx context.Context) ([]string, error) {
	summary := p.crawler.Run(ctx, ListingTargets(p.cfg.BaseURL, p.cfg.MaxPages))

	seen := make(map[string]struct{})
	var proxies []string
	found := 0
	for _, snap := range summary.Snapshots {
		data, err := p.store.Read(ctx, snap)
		if err != nil {
			p.logger.Warn("skipping unreadable listing", zap.String("path", snap.Path), zap.Error(err))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			p.logger.Warn("skipping unparsable listing", zap.String("path", snap.Path), zap.Error(err))
			continue
		}
		for _, s := range ExtractSockets(doc) {
			found++
			if s.Protocol != p.cfg.Protocol {
				continue
			}
			u := s.URL()
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			proxies = append(proxies, u)
		}
	}
	p.logger.Info("sockets extracted",
		zap.Int("pages", len(summary.Snapshots)),
		zap.Int("sockets", found),
		zap.String("protocol", p.cfg.Protocol),
		zap.Int("matching", len(proxies)),
	)

	if p.checker != nil && len(proxies) > 0 {
		proxies = p.checker.Filter(ctx, proxies)
		p.logger.Info("proxies checked", zap.Int("alive", len(proxies)))
	}
	if proxies == nil {
		proxies = []string{}
	}

	if err := p.writeJSON(ctx, PoolFile, map[string][]string{p.cfg.Protocol: proxies}); err != nil {
		return nil, err
	}
	if p.cfg.DeletePageFiles {
		if err := p.store.Purge(ctx); err != nil {
			p.logger.Warn("purge listing pages", zap.Error(err))
		}
	}
	settings := Settings{
		BaseURL:         p.cfg.BaseURL,
		DirName:         p.cfg.Dir,
		Protocol:        p.cfg.Protocol,
		MaxPages:        p.cfg.MaxPages,
		MaxTasks:        p.cfg.MaxTasks,
		DeletePageFiles: p.cfg.DeletePageFiles,
	}
	if err := p.writeJSON(ctx, SettingsFile, settings); err != nil {
		return nil, err
	}
	return proxies, nil
}

func (p *Pipeline) writeJSON(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	uri, err := p.store.PutObject(ctx, name, "application/json", data)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	p.logger.Info("artifact written", zap.String("uri", uri))
	return nil
}

// LoadPool reads a stored pool back, using the protocol recorded in the
// settings artifact.
func LoadPool(ctx context.Context, r ObjectReader) ([]string, error) {
	raw, err := r.GetObject(ctx, SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SettingsFile, err)
	}
	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode %s: %w", SettingsFile, err)
	}
	raw, err = r.GetObject(ctx, PoolFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", PoolFile, err)
	}
	var pool map[string][]string
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, fmt.Errorf("decode %s: %w", PoolFile, err)
	}
	proxies, ok := pool[strings.ToUpper(settings.Protocol)]
	if !ok {
		return nil, fmt.Errorf("%s has no %q entry", PoolFile, settings.Protocol)
	}
	return proxies, nil
}
