// Package discovery finds price-list URLs through a metered search proxy and
// keeps the resulting URL list as a JSON artifact.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
	"github.com/JakeFAU/metal-price-harvester/internal/ledger"
)

// Defaults for the search endpoints.
const (
	DefaultSearchURL = "https://www.google.com/search"
	DefaultEndpoint  = "http://api.scraperapi.com"
	DefaultURLList   = "ALL_HREFS.json"
)

var unsafeFileChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Config describes a discovery run.
type Config struct {
	Query     string `mapstructure:"query"`
	Num       int    `mapstructure:"num"`
	Start     int    `mapstructure:"start"`
	Stop      int    `mapstructure:"stop"`
	SearchURL string `mapstructure:"search_url"`
	Endpoint  string `mapstructure:"endpoint"`
}

// Searcher pages through search results, paying for each page from the ledger.
type Searcher struct {
	cfg     Config
	fetcher crawler.Fetcher
	ledger  ledger.Ledger
	store   crawler.SnapshotStore
	logger  *zap.Logger
}

// NewSearcher validates cfg and wires a Searcher.
func NewSearcher(cfg Config, fetcher crawler.Fetcher, l ledger.Ledger, store crawler.SnapshotStore, logger *zap.Logger) (*Searcher, error) {
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, errors.New("discovery requires a query")
	}
	if cfg.Num <= 0 {
		return nil, fmt.Errorf("discovery page size must be > 0, got %d", cfg.Num)
	}
	if fetcher == nil || l == nil || store == nil {
		return nil, errors.New("discovery requires a fetcher, a ledger and a store")
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{cfg: cfg, fetcher: fetcher, ledger: l, store: store, logger: logger}, nil
}

// SearchURLs returns one results-page URL per offset from Start to Stop.
func (s *Searcher) SearchURLs() []string {
	var out []string
	for start := s.cfg.Start; start <= s.cfg.Stop; start += s.cfg.Num {
		out = append(out, fmt.Sprintf("%s?q=%s&num=%d&start=%d", s.cfg.SearchURL, url.QueryEscape(s.cfg.Query), s.cfg.Num, start))
	}
	return out
}

// MeteredURL wraps target in the metered endpoint call for apiKey.
func MeteredURL(endpoint, target, apiKey string) string {
	return endpoint + "?" + url.Values{"url": {target}, "api_key": {apiKey}}.Encode()
}

// Discover fetches every results page and returns the links found, in order
// and without duplicates. Running out of quota stops discovery; the links
// gathered so far are still returned unless there are none.
func (s *Searcher) Discover(ctx context.Context) ([]string, error) {
	var links []string
	seen := make(map[string]struct{})
	for i, searchURL := range s.SearchURLs() {
		cred, err := ledger.Select(ctx, s.ledger)
		if errors.Is(err, crawler.ErrQuotaExhausted) {
			s.logger.Warn("search quota exhausted", zap.Int("page", i+1))
			if len(links) == 0 {
				return nil, fmt.Errorf("discover: %w", err)
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("select credential: %w", err)
		}

		resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: MeteredURL(s.cfg.Endpoint, searchURL, cred.APIKey)})
		if err != nil {
			s.logger.Warn("search page failed", zap.Int("page", i+1), zap.Error(err))
			if ctx.Err() != nil {
				return nil, fmt.Errorf("discover: %w", ctx.Err())
			}
			continue
		}
		if err := s.ledger.Commit(ctx, cred.ID); err != nil {
			return nil, fmt.Errorf("commit credit: %w", err)
		}
		if _, err := s.store.Put(ctx, s.pageName(i+1), searchURL, resp.Body); err != nil {
			s.logger.Warn("store search page", zap.Error(err))
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			s.logger.Warn("parse search page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		found := 0
		for _, link := range ExtractLinks(doc) {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
			found++
		}
		s.logger.Info("search page processed", zap.Int("page", i+1), zap.Int("new_links", found), zap.String("credential", cred.ID))
	}
	return links, nil
}

func (s *Searcher) pageName(page int) string {
	return fmt.Sprintf("%s%d%s", unsafeFileChars.ReplaceAllString(s.cfg.Query, ""), page, crawler.SnapshotExt)
}

// ExtractLinks returns the result links of a search page.
func ExtractLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("span.V9tjod").Each(func(_ int, span *goquery.Selection) {
		if href, ok := span.Find("a").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			out = append(out, strings.TrimSpace(href))
		}
	})
	return out
}

// ObjectReader reads artifacts back.
type ObjectReader interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// WriteURLList stores urls as a JSON array under name.
func WriteURLList(ctx context.Context, store crawler.BlobStore, name string, urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode url list: %w", err)
	}
	uri, err := store.PutObject(ctx, name, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("write url list: %w", err)
	}
	return uri, nil
}

// LoadURLList reads a JSON array of URLs stored under name.
func LoadURLList(ctx context.Context, r ObjectReader, name string) ([]string, error) {
	data, err := r.GetObject(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("read url list %s: %w", name, err)
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("decode url list %s: %w", name, err)
	}
	return urls, nil
}
