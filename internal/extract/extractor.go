// Package extract unifies the price tables of stored snapshots into one table.
//
// Extraction runs in three phases. DiscoverColumns builds the column union
// across every accepted page. ExtractPage maps each page's rows onto that
// union. Assemble concatenates the pages and sorts the result.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
	"github.com/JakeFAU/metal-price-harvester/internal/metrics"
)

// DefaultSortColumn is the header 23met.ru uses for the product name.
const DefaultSortColumn = "Наименование"

// SnapshotReader loads stored page bodies.
type SnapshotReader interface {
	Read(ctx context.Context, snapshot crawler.Snapshot) ([]byte, error)
}

// PageFilter is the page and row gate applied during extraction.
type PageFilter interface {
	AcceptDocument(doc *goquery.Document) bool
	Tables(doc *goquery.Document) *goquery.Selection
	AcceptRow(cells []string) bool
}

// Config tunes an Extractor.
type Config struct {
	SortColumn string `mapstructure:"sort_column"`
	Workers    int    `mapstructure:"workers"`
}

// Extractor turns snapshots into a unified dataset.Table.
type Extractor struct {
	reader     SnapshotReader
	filter     PageFilter
	strategies []MetadataStrategy
	sortColumn string
	workers    int
	logger     *zap.Logger
}

// Page is the extraction result for one snapshot.
type Page struct {
	Report  PageReport
	Records []dataset.Record
}

// New builds an Extractor using the default metadata strategies.
func New(reader SnapshotReader, filter PageFilter, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if reader == nil {
		return nil, errors.New("extractor requires a snapshot reader")
	}
	if filter == nil {
		return nil, errors.New("extractor requires a page filter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		reader:     reader,
		filter:     filter,
		strategies: DefaultStrategies(),
		sortColumn: cfg.SortColumn,
		workers:    cfg.Workers,
		logger:     logger,
	}
	if e.sortColumn == "" {
		e.sortColumn = DefaultSortColumn
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e, nil
}

// WithStrategies replaces the metadata strategy chain.
func (e *Extractor) WithStrategies(strategies ...MetadataStrategy) *Extractor {
	e.strategies = strategies
	return e
}

// Run executes all three phases over snapshots, ordered by path.
func (e *Extractor) Run(ctx context.Context, snapshots []crawler.Snapshot) (dataset.Table, Report, error) {
	ordered := append([]crawler.Snapshot(nil), snapshots...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	cols, err := e.DiscoverColumns(ctx, ordered)
	if err != nil {
		return dataset.Table{}, Report{}, err
	}

	pages := make([]Page, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, snap := range ordered {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pages[i] = e.ExtractPage(gctx, snap, cols)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dataset.Table{}, Report{}, fmt.Errorf("extract pages: %w", err)
	}

	table, report := e.Assemble(cols, pages)
	e.logger.Info("extraction finished",
		zap.Int("pages", len(ordered)),
		zap.Int("accepted_pages", report.Accepted()),
		zap.Int("columns", len(table.Columns)),
		zap.Int("rows", len(table.Records)),
		zap.Int("total_rows", report.Stats.TotalRows),
		zap.Int("filtered_rows", report.Stats.FilteredRows),
	)
	if len(report.Unusable) > 0 {
		e.logger.Warn("pages without usable data", zap.Strings("paths", report.Unusable))
	}
	return table, report, nil
}

// DiscoverColumns returns the union of header names over every accepted
// snapshot, in first-seen order, followed by the synthetic metadata columns.
func (e *Extractor) DiscoverColumns(ctx context.Context, snapshots []crawler.Snapshot) (*dataset.ColumnSet, error) {
	headers := make([][]string, len(snapshots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, snap := range snapshots {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := e.load(gctx, snap)
			if err != nil {
				e.logger.Warn("skipping unreadable snapshot", zap.String("path", snap.Path), zap.Error(err))
				return nil
			}
			if !e.filter.AcceptDocument(doc) {
				return nil
			}
			e.filter.Tables(doc).Each(func(_ int, table *goquery.Selection) {
				headers[i] = append(headers[i], tableHeaders(table)...)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover columns: %w", err)
	}

	cols := dataset.NewColumnSet()
	for _, names := range headers {
		for _, name := range names {
			if name != "" {
				cols.Add(name)
			}
		}
	}
	cols.Add(dataset.ColumnCompany)
	cols.Add(dataset.ColumnCity)
	return cols, nil
}

// ExtractPage maps one snapshot's rows onto cols. Problems are reported in
// the returned PageReport rather than as errors so a run never aborts on a
// single bad page.
func (e *Extractor) ExtractPage(ctx context.Context, snap crawler.Snapshot, cols *dataset.ColumnSet) Page {
	page := Page{Report: PageReport{Path: snap.Path, URL: snap.URL}}
	defer func() { metrics.ObservePage(string(page.Report.Status)) }()

	doc, err := e.load(ctx, snap)
	if err != nil {
		page.Report.Status = PageUnreadable
		page.Report.Error = err.Error()
		return page
	}
	if !e.filter.AcceptDocument(doc) {
		page.Report.Status = PageNonMatching
		return page
	}

	md, strategy := ResolveMetadata(doc, e.strategies)
	page.Report.Company, page.Report.City, page.Report.Strategy = md.Company, md.City, strategy

	var records []dataset.Record
	var stats crawler.Stats
	var tableErr error
	e.filter.Tables(doc).EachWithBreak(func(ti int, table *goquery.Selection) bool {
		rows, s, err := e.extractTable(table, cols, md)
		stats.Add(s)
		if err != nil {
			tableErr = fmt.Errorf("table %d: %w", ti, err)
			return false
		}
		records = append(records, rows...)
		return true
	})
	page.Report.Stats = stats
	metrics.ObserveRows(stats.TotalRows, stats.FilteredRows)

	switch {
	case tableErr != nil:
		page.Report.Status = PageMalformed
		page.Report.Error = tableErr.Error()
		e.logger.Warn("dropping malformed page", zap.String("path", snap.Path), zap.Error(tableErr))
	case len(records) == 0:
		page.Report.Status = PageEmpty
	default:
		page.Report.Status = PageAccepted
		page.Records = records
	}
	return page
}

func (e *Extractor) extractTable(table *goquery.Selection, cols *dataset.ColumnSet, md Metadata) ([]dataset.Record, crawler.Stats, error) {
	var stats crawler.Stats
	headers := tableHeaders(table)
	if dup, ok := duplicateHeader(headers); ok {
		return nil, stats, fmt.Errorf("%w: duplicate header %q", crawler.ErrSchemaMismatch, dup)
	}

	var records []dataset.Record
	var rowErr error
	table.Find("tbody tr").EachWithBreak(func(ri int, tr *goquery.Selection) bool {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return true
		}
		cells := tds.Map(func(_ int, td *goquery.Selection) string { return td.Text() })
		stats.TotalRows++
		if !e.filter.AcceptRow(cells) {
			return true
		}
		stats.FilteredRows++
		if len(cells) != len(headers) {
			rowErr = fmt.Errorf("%w: row %d has %d cells, header has %d",
				crawler.ErrSchemaMismatch, ri, len(cells), len(headers))
			return false
		}
		rec := dataset.NewRecord(cols)
		for i, name := range headers {
			if name == "" {
				continue
			}
			rec.Set(name, strings.TrimSpace(cells[i]))
		}
		rec.Set(dataset.ColumnCompany, md.Company)
		rec.Set(dataset.ColumnCity, md.City)
		records = append(records, rec)
		return true
	})
	if rowErr != nil {
		return nil, stats, rowErr
	}
	return records, stats, nil
}

// Assemble concatenates pages in order and sorts the rows by the sort column.
func (e *Extractor) Assemble(cols *dataset.ColumnSet, pages []Page) (dataset.Table, Report) {
	table := dataset.Table{Columns: cols.Names()}
	var report Report
	for _, p := range pages {
		report.add(p.Report)
		table.Records = append(table.Records, p.Records...)
	}
	table.SortBy(e.sortColumn)
	return table, report
}

func (e *Extractor) load(ctx context.Context, snap crawler.Snapshot) (*goquery.Document, error) {
	data, err := e.reader.Read(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", crawler.ErrParse, snap.Path, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", crawler.ErrParse, snap.Path, err)
	}
	return doc, nil
}

func tableHeaders(table *goquery.Selection) []string {
	return table.Find("thead th").Map(func(_ int, th *goquery.Selection) string {
		return strings.TrimSpace(th.Text())
	})
}

func duplicateHeader(headers []string) (string, bool) {
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			return h, true
		}
		seen[h] = struct{}{}
	}
	return "", false
}
