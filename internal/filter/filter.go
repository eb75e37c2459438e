// Package filter implements the page-level and row-level acceptance gates.
package filter

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Mode selects how keywords combine.
type Mode string

// Keyword modes.
const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

// Defaults for 23met.ru price-list pages.
const (
	DefaultDomainMarker    = "23met"
	DefaultPriceListMarker = "прайс"
	DefaultTableSelector   = "table.tablesorter"
)

// Config describes what an on-topic page looks like.
type Config struct {
	DomainMarker    string   `mapstructure:"domain_marker"`
	PriceListMarker string   `mapstructure:"pricelist_marker"`
	TableSelector   string   `mapstructure:"table_selector"`
	Keywords        []string `mapstructure:"keywords"`
	Mode            Mode     `mapstructure:"mode"`
}

// Filter accepts price-list pages and keyword-matching rows.
type Filter struct {
	domainMarker    string
	priceListMarker string
	tableSelector   string
	keywords        []string
	mode            Mode
}

// New builds a Filter. Empty markers and selector fall back to the 23met.ru defaults.
func New(cfg Config) (*Filter, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeAny
	}
	if mode != ModeAny && mode != ModeAll {
		return nil, fmt.Errorf("unknown filter mode %q", cfg.Mode)
	}
	f := &Filter{
		domainMarker:    strings.ToLower(orDefault(cfg.DomainMarker, DefaultDomainMarker)),
		priceListMarker: strings.ToLower(orDefault(cfg.PriceListMarker, DefaultPriceListMarker)),
		tableSelector:   orDefault(cfg.TableSelector, DefaultTableSelector),
		mode:            mode,
	}
	for _, kw := range cfg.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			f.keywords = append(f.keywords, kw)
		}
	}
	return f, nil
}

// HasKeywords reports whether keyword filtering is active.
func (f *Filter) HasKeywords() bool {
	return len(f.keywords) > 0
}

// AcceptPage parses raw markup and applies the page-level gate.
func (f *Filter) AcceptPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return f.AcceptDocument(doc)
}

// AcceptDocument applies the page-level gate: the title must carry both
// markers, the page must hold at least one price table, and when keywords are
// set the table text must match them.
func (f *Filter) AcceptDocument(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").First().Text())
	if !strings.Contains(title, f.domainMarker) || !strings.Contains(title, f.priceListMarker) {
		return false
	}
	tables := f.Tables(doc)
	if tables.Length() == 0 {
		return false
	}
	if !f.HasKeywords() {
		return true
	}
	parts := make([]string, 0, tables.Length())
	tables.Each(func(_ int, table *goquery.Selection) {
		parts = append(parts, table.Text())
	})
	return f.match(strings.ToLower(strings.Join(parts, " ")))
}

// Tables returns the price tables of a page.
func (f *Filter) Tables(doc *goquery.Document) *goquery.Selection {
	return doc.Find(f.tableSelector)
}

// AcceptRow applies the row-level gate to one row's cell texts.
func (f *Filter) AcceptRow(cells []string) bool {
	if !f.HasKeywords() {
		return true
	}
	parts := make([]string, 0, len(cells))
	for _, cell := range cells {
		parts = append(parts, strings.TrimSpace(cell))
	}
	return f.match(strings.ToLower(strings.Join(parts, " ")))
}

func (f *Filter) match(text string) bool {
	if f.mode == ModeAll {
		for _, kw := range f.keywords {
			if !strings.Contains(text, kw) {
				return false
			}
		}
		return true
	}
	for _, kw := range f.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// AcceptNonEmpty keeps any page with content. Proxy listings use it.
type AcceptNonEmpty struct{}

// AcceptPage reports whether html has any non-blank content.
func (AcceptNonEmpty) AcceptPage(html string) bool {
	return strings.TrimSpace(html) != ""
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
