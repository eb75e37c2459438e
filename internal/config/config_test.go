package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimit.MaxRate != 1 || cfg.RateLimit.Period != 10*time.Second {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Proxy.MaxPages != 77 || cfg.Proxy.MaxTasks != 25 || cfg.Proxy.Protocol != "HTTPS" {
		t.Fatalf("unexpected proxy defaults: %+v", cfg.Proxy)
	}
	if !cfg.Proxy.DeletePageFiles || cfg.Proxy.CheckTimeout != 30*time.Second {
		t.Fatalf("unexpected proxy check defaults: %+v", cfg.Proxy)
	}
	if len(cfg.Filter.Keywords) != 3 || cfg.Filter.Keywords[0] != "Труба ВГП" {
		t.Fatalf("unexpected default keywords: %v", cfg.Filter.Keywords)
	}
	if cfg.Discovery.Query != "23met прайс" || cfg.Discovery.Num != 100 || cfg.Discovery.Dir != "GoogleHTML" {
		t.Fatalf("unexpected discovery defaults: %+v", cfg.Discovery)
	}
	if cfg.Output.RawFile != "result.csv" || cfg.Output.NormalizedFile != "preprocessing_result.csv" {
		t.Fatalf("unexpected output defaults: %+v", cfg.Output)
	}
	if cfg.Fetch.MaxAttempts != 5 || cfg.Fetch.RetryDelay != 2*time.Second {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if got := cfg.Fetch.Collector(); got.CooldownMin != 2*time.Second || got.CooldownMax != 5*time.Second {
		t.Fatalf("unexpected collector view: %+v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
fetch:
  timeout: 10s
  cooldown_min: 0s
  cooldown_max: 0s
  user_agents: ["agent-a", "agent-b"]
rate_limit:
  max_rate: 100
  period: 1s
filter:
  keywords: []
  mode: all
crawl:
  snapshot_dir: html
  with_proxy: true
extract:
  sort_column: Размер
  workers: 8
output:
  dir: out
  gcs_bucket: prices
  gcs_prefix: runs
proxy:
  max_pages: 3
  check_url: https://example.com/
discovery:
  query: metal
  stop: 100
  dir: search
database:
  url: postgres://localhost/prices
pubsub:
  project_id: proj
  topic: runs
metrics:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Logging.Development || cfg.Fetch.Timeout != 10*time.Second {
		t.Fatalf("expected logging and fetch overrides: %+v %+v", cfg.Logging, cfg.Fetch)
	}
	if len(cfg.Fetch.UserAgents) != 2 || cfg.RateLimit.Limiter().MaxRate != 100 {
		t.Fatalf("expected fetch and rate overrides: %+v %+v", cfg.Fetch, cfg.RateLimit)
	}
	if len(cfg.Filter.Keywords) != 0 || cfg.Filter.Mode != "all" {
		t.Fatalf("expected filter overrides: %+v", cfg.Filter)
	}
	if cfg.Crawl.SnapshotDir != "html" || !cfg.Crawl.WithProxy {
		t.Fatalf("expected crawl overrides: %+v", cfg.Crawl)
	}
	if cfg.Extract.SortColumn != "Размер" || cfg.Extract.Workers != 8 {
		t.Fatalf("expected extract overrides: %+v", cfg.Extract)
	}
	if cfg.Output.Bucket != "prices" || cfg.Output.Prefix != "runs" || cfg.Output.Dir != "out" {
		t.Fatalf("expected output overrides: %+v", cfg.Output)
	}
	if cfg.Proxy.MaxPages != 3 || cfg.Proxy.CheckURL != "https://example.com/" || cfg.Proxy.MaxTasks != 25 {
		t.Fatalf("expected proxy overrides merged with defaults: %+v", cfg.Proxy)
	}
	if cfg.Discovery.Query != "metal" || cfg.Discovery.Stop != 100 || cfg.Discovery.Dir != "search" {
		t.Fatalf("expected discovery overrides: %+v", cfg.Discovery)
	}
	if cfg.Database.URL == "" || cfg.Database.Table != "price_records" {
		t.Fatalf("expected database overrides: %+v", cfg.Database)
	}
	if cfg.PubSub.Topic != "runs" || cfg.Metrics.Addr != ":9090" {
		t.Fatalf("expected pubsub and metrics overrides: %+v %+v", cfg.PubSub, cfg.Metrics)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HARVESTER_RATE_LIMIT_MAX_RATE", "7")
	t.Setenv("HARVESTER_PROXY_PROTOCOL", "HTTP")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateLimit.MaxRate != 7 || cfg.Proxy.Protocol != "HTTP" {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.RateLimit, cfg.Proxy)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "timeout", mutate: func(c *Config) { c.Fetch.Timeout = 0 }, want: "fetch.timeout"},
		{name: "cooldown order", mutate: func(c *Config) { c.Fetch.CooldownMax = time.Second }, want: "fetch.cooldown_min"},
		{name: "attempts", mutate: func(c *Config) { c.Fetch.MaxAttempts = 0 }, want: "fetch.max_attempts"},
		{name: "rate", mutate: func(c *Config) { c.RateLimit.Period = 0 }, want: "rate_limit"},
		{name: "filter mode", mutate: func(c *Config) { c.Filter.Mode = "some" }, want: "filter.mode"},
		{name: "snapshot dir", mutate: func(c *Config) { c.Crawl.SnapshotDir = " " }, want: "crawl.snapshot_dir"},
		{name: "urls file", mutate: func(c *Config) { c.Crawl.URLsFile = "" }, want: "crawl.urls_file"},
		{name: "workers", mutate: func(c *Config) { c.Extract.Workers = -1 }, want: "extract.workers"},
		{name: "outputs", mutate: func(c *Config) { c.Output.RawFile = "" }, want: "output.raw_file"},
		{name: "proxy pages", mutate: func(c *Config) { c.Proxy.MaxPages = -1 }, want: "proxy.max_pages"},
		{name: "discovery range", mutate: func(c *Config) { c.Discovery.Stop = -1 }, want: "discovery.num"},
		{name: "ledger cost", mutate: func(c *Config) { c.Ledger.Cost = -5 }, want: "ledger.cost"},
		{name: "pubsub pair", mutate: func(c *Config) { c.PubSub.Topic = "runs" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
