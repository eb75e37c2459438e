// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/metal-price-harvester/internal/discovery"
	"github.com/JakeFAU/metal-price-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/metal-price-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/metal-price-harvester/internal/filter"
	"github.com/JakeFAU/metal-price-harvester/internal/ledger"
	"github.com/JakeFAU/metal-price-harvester/internal/output"
	"github.com/JakeFAU/metal-price-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/metal-price-harvester/internal/proxy"
	"github.com/JakeFAU/metal-price-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/metal-price-harvester/internal/storage/gcs"
	"github.com/JakeFAU/metal-price-harvester/internal/storage/postgres"
)

// EnvPrefix is prepended to every environment override, e.g. HARVESTER_RATE_LIMIT_MAX_RATE.
const EnvPrefix = "HARVESTER"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Filter    filter.Config   `mapstructure:"filter"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Extract   extract.Config  `mapstructure:"extract"`
	Output    OutputConfig    `mapstructure:"output"`
	Proxy     proxy.Config    `mapstructure:"proxy"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Database  postgres.Config `mapstructure:"database"`
	PubSub    pubsub.Config   `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig configures the colly fetcher and its retry wrapper.
type FetchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	CooldownMin time.Duration `mapstructure:"cooldown_min"`
	CooldownMax time.Duration `mapstructure:"cooldown_max"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	BlockMarker string        `mapstructure:"block_marker"`
	Referer     string        `mapstructure:"referer"`
	UserAgents  []string      `mapstructure:"user_agents"`
}

// Collector returns the fetcher view of the config.
func (f FetchConfig) Collector() collyfetcher.Config {
	return collyfetcher.Config{
		Timeout:     f.Timeout,
		CooldownMin: f.CooldownMin,
		CooldownMax: f.CooldownMax,
		BlockMarker: f.BlockMarker,
		Referer:     f.Referer,
		UserAgents:  f.UserAgents,
	}
}

// RateLimitConfig is the shared token bucket: MaxRate fetches per Period.
type RateLimitConfig struct {
	MaxRate int           `mapstructure:"max_rate"`
	Period  time.Duration `mapstructure:"period"`
}

// Limiter returns the limiter view of the config.
func (r RateLimitConfig) Limiter() ratelimit.Config {
	return ratelimit.Config{MaxRate: r.MaxRate, Period: r.Period}
}

// CrawlConfig governs the site crawl.
type CrawlConfig struct {
	URLsFile    string `mapstructure:"urls_file"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
	WithProxy   bool   `mapstructure:"with_proxy"`
	Cleanup     bool   `mapstructure:"cleanup"`
	MaxInFlight int64  `mapstructure:"max_in_flight"`
}

// OutputConfig names the result files and the optional upload bucket.
type OutputConfig struct {
	Dir            string `mapstructure:"dir"`
	RawFile        string `mapstructure:"raw_file"`
	NormalizedFile string `mapstructure:"normalized_file"`
	gcs.Config     `mapstructure:",squash"`
}

// LedgerConfig locates the credit ledger file.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
	Cost int    `mapstructure:"cost"`
}

// DiscoveryConfig adds the directory search pages are kept in.
type DiscoveryConfig struct {
	discovery.Config `mapstructure:",squash"`
	Dir              string `mapstructure:"dir"`
}

// MetricsConfig controls the Prometheus endpoint served during a run.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.cooldown_min", 2*time.Second)
	v.SetDefault("fetch.cooldown_max", 5*time.Second)
	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.retry_delay", 2*time.Second)
	v.SetDefault("fetch.block_marker", collyfetcher.DefaultBlockMarker)
	v.SetDefault("fetch.referer", "https://23met.ru/")
	v.SetDefault("fetch.user_agents", []string{})

	v.SetDefault("rate_limit.max_rate", 1)
	v.SetDefault("rate_limit.period", 10*time.Second)

	v.SetDefault("filter.domain_marker", filter.DefaultDomainMarker)
	v.SetDefault("filter.pricelist_marker", filter.DefaultPriceListMarker)
	v.SetDefault("filter.table_selector", filter.DefaultTableSelector)
	v.SetDefault("filter.keywords", []string{"Труба ВГП", "Труба б/ш г/д", "Труба э/с"})
	v.SetDefault("filter.mode", string(filter.ModeAny))

	v.SetDefault("crawl.urls_file", discovery.DefaultURLList)
	v.SetDefault("crawl.snapshot_dir", "23MET_DATA")
	v.SetDefault("crawl.with_proxy", false)
	v.SetDefault("crawl.cleanup", false)
	v.SetDefault("crawl.max_in_flight", 0)

	v.SetDefault("extract.sort_column", extract.DefaultSortColumn)
	v.SetDefault("extract.workers", 0)

	v.SetDefault("output.dir", "23MET_DATA")
	v.SetDefault("output.raw_file", output.RawFile)
	v.SetDefault("output.normalized_file", output.NormalizedFile)
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "")

	v.SetDefault("proxy.base_url", "https://proxylib.com/free-proxy-list")
	v.SetDefault("proxy.dir", "PROXY")
	v.SetDefault("proxy.protocol", "HTTPS")
	v.SetDefault("proxy.max_pages", 77)
	v.SetDefault("proxy.max_tasks", 25)
	v.SetDefault("proxy.delete_page_files", true)
	v.SetDefault("proxy.check_url", "https://23met.ru/")
	v.SetDefault("proxy.check_timeout", 30*time.Second)
	v.SetDefault("proxy.check_rate", 100)
	v.SetDefault("proxy.check_period", time.Second)

	v.SetDefault("ledger.path", "config.json")
	v.SetDefault("ledger.cost", ledger.DefaultCost)

	v.SetDefault("discovery.query", "23met прайс")
	v.SetDefault("discovery.num", 100)
	v.SetDefault("discovery.start", 0)
	v.SetDefault("discovery.stop", 200)
	v.SetDefault("discovery.search_url", discovery.DefaultSearchURL)
	v.SetDefault("discovery.endpoint", discovery.DefaultEndpoint)
	v.SetDefault("discovery.dir", "GoogleHTML")

	v.SetDefault("database.url", "")
	v.SetDefault("database.table", "price_records")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be > 0"))
	}
	if c.Fetch.CooldownMin < 0 || c.Fetch.CooldownMax < c.Fetch.CooldownMin {
		errs = append(errs, errors.New("fetch.cooldown_min must be >= 0 and <= fetch.cooldown_max"))
	}
	if c.Fetch.MaxAttempts <= 0 {
		errs = append(errs, errors.New("fetch.max_attempts must be > 0"))
	}
	if c.RateLimit.MaxRate <= 0 || c.RateLimit.Period <= 0 {
		errs = append(errs, errors.New("rate_limit.max_rate and rate_limit.period must be > 0"))
	}
	if mode := filter.Mode(strings.ToLower(string(c.Filter.Mode))); mode != filter.ModeAny && mode != filter.ModeAll {
		errs = append(errs, fmt.Errorf("filter.mode must be %q or %q", filter.ModeAny, filter.ModeAll))
	}
	if strings.TrimSpace(c.Crawl.SnapshotDir) == "" {
		errs = append(errs, errors.New("crawl.snapshot_dir is required"))
	}
	if strings.TrimSpace(c.Crawl.URLsFile) == "" {
		errs = append(errs, errors.New("crawl.urls_file is required"))
	}
	if c.Extract.Workers < 0 {
		errs = append(errs, errors.New("extract.workers must be >= 0"))
	}
	if c.Output.RawFile == "" || c.Output.NormalizedFile == "" {
		errs = append(errs, errors.New("output.raw_file and output.normalized_file are required"))
	}
	if c.Proxy.MaxPages < 0 || c.Proxy.MaxTasks < 0 {
		errs = append(errs, errors.New("proxy.max_pages and proxy.max_tasks must be >= 0"))
	}
	if c.Discovery.Num <= 0 || c.Discovery.Stop < c.Discovery.Start {
		errs = append(errs, errors.New("discovery.num must be > 0 and discovery.stop >= discovery.start"))
	}
	if c.Ledger.Cost < 0 {
		errs = append(errs, errors.New("ledger.cost must be >= 0"))
	}
	if (c.PubSub.Topic == "") != (c.PubSub.ProjectID == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic must be set together"))
	}
	return errors.Join(errs...)
}
