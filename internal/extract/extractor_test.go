package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
	"github.com/JakeFAU/metal-price-harvester/internal/filter"
	"github.com/JakeFAU/metal-price-harvester/internal/storage/memory"
)

func priceList(title string, headers []string, rows ...[]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><table class=\"tablesorter\"><thead><tr>", title)
	for _, h := range headers {
		fmt.Fprintf(&b, "<th>%s</th>", h)
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", cell)
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

type fixture struct {
	store     *memory.Store
	snapshots []crawler.Snapshot
}

func newFixture(t *testing.T, pages map[string]string) fixture {
	t.Helper()
	store := memory.NewStore()
	for name, html := range pages {
		_, err := store.Put(context.Background(), name, "https://23met.ru/"+name, []byte(html))
		require.NoError(t, err)
	}
	snaps, err := store.List(context.Background())
	require.NoError(t, err)
	return fixture{store: store, snapshots: snaps}
}

func newExtractor(t *testing.T, reader SnapshotReader, keywords []string, cfg Config) *Extractor {
	t.Helper()
	f, err := filter.New(filter.Config{Keywords: keywords})
	require.NoError(t, err)
	e, err := New(reader, f, cfg, nil)
	require.NoError(t, err)
	return e
}

func TestRunUnifiesColumnsAcrossPages(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"a.html": priceList("Альфа | Москва | прайс-лист 23MET", []string{"A", "B"},
			[]string{"a1", "b1"}, []string{"a2", "b2"}),
		"b.html": priceList("Бета | Казань | прайс-лист 23MET", []string{"B", "C"},
			[]string{"b3", "c3"}),
	})
	e := newExtractor(t, fx.store, nil, Config{SortColumn: "B"})

	table, report, err := e.Run(context.Background(), fx.snapshots)
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	assert.Equal(t, []string{"A", "B", "C", dataset.ColumnCompany, dataset.ColumnCity}, table.Columns)
	require.Len(t, table.Records, 3)
	for _, rec := range table.Records {
		assert.Len(t, rec, 5)
	}

	last := table.Records[2]
	assert.Nil(t, last["A"])
	b, _ := last.Get("B")
	c, _ := last.Get("C")
	company, _ := last.Get(dataset.ColumnCompany)
	city, _ := last.Get(dataset.ColumnCity)
	assert.Equal(t, "b3", b)
	assert.Equal(t, "c3", c)
	assert.Equal(t, "Бета", company)
	assert.Equal(t, "Казань", city)
	assert.Nil(t, table.Records[0]["C"])

	assert.Equal(t, crawler.Stats{TotalRows: 3, FilteredRows: 3}, report.Stats)
	assert.Equal(t, 2, report.Accepted())
	assert.Empty(t, report.Unusable)
}

func TestRunAppliesRowFilterAndSorts(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"page.html": priceList("Сталь | Тула | прайс-лист 23MET", []string{"Наименование", "Размер"},
			[]string{"Труба ВГП", "32"},
			[]string{"Арматура", "12"},
			[]string{"Труба ВГП", "20"},
			[]string{"Лист", "3"},
		),
	})
	e := newExtractor(t, fx.store, []string{"Труба ВГП", "Арматура"}, Config{})

	table, report, err := e.Run(context.Background(), fx.snapshots)
	require.NoError(t, err)
	require.Len(t, table.Records, 3)

	var names, sizes []string
	for _, rec := range table.Records {
		n, _ := rec.Get("Наименование")
		s, _ := rec.Get("Размер")
		names = append(names, n)
		sizes = append(sizes, s)
	}
	assert.Equal(t, []string{"Арматура", "Труба ВГП", "Труба ВГП"}, names)
	assert.Equal(t, []string{"12", "32", "20"}, sizes)
	assert.Equal(t, crawler.Stats{TotalRows: 4, FilteredRows: 3}, report.Stats)
}

func TestRunReportsUnusablePages(t *testing.T) {
	t.Parallel()

	header := []string{"Наименование", "Цена"}
	fx := newFixture(t, map[string]string{
		"good.html":      priceList("Сталь | Тула | прайс-лист 23MET", header, []string{"Труба", "100"}),
		"news.html":      "<html><head><title>23MET новости</title></head><body></body></html>",
		"ragged.html":    priceList("Сталь | Тула | прайс-лист 23MET", header, []string{"Труба", "100", "лишняя"}),
		"filtered.html":  priceList("Сталь | Тула | прайс-лист 23MET", header),
		"duplicate.html": priceList("Сталь | Тула | прайс-лист 23MET", []string{"Цена", "Цена"}, []string{"1", "2"}),
	})
	e := newExtractor(t, fx.store, nil, Config{})

	table, report, err := e.Run(context.Background(), fx.snapshots)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)

	statuses := make(map[string]PageStatus)
	for _, p := range report.Pages {
		statuses[strings.TrimPrefix(p.Path, "memory://")] = p.Status
	}
	assert.Equal(t, map[string]PageStatus{
		"good.html":      PageAccepted,
		"news.html":      PageNonMatching,
		"ragged.html":    PageMalformed,
		"filtered.html":  PageEmpty,
		"duplicate.html": PageMalformed,
	}, statuses)
	assert.Len(t, report.Unusable, 4)
}

func TestRunWithNoAcceptedPages(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"news.html": "<html><head><title>новости</title></head></html>",
	})
	e := newExtractor(t, fx.store, nil, Config{})

	table, report, err := e.Run(context.Background(), fx.snapshots)
	require.NoError(t, err)
	assert.Empty(t, table.Records)
	assert.Equal(t, []string{dataset.ColumnCompany, dataset.ColumnCity}, table.Columns)
	assert.Equal(t, 0, report.Accepted())
}

type failingReader struct{ fail string }

func (r failingReader) Read(ctx context.Context, snap crawler.Snapshot) ([]byte, error) {
	if snap.Path == r.fail {
		return nil, errors.New("disk gone")
	}
	return []byte(priceList("Сталь | Тула | прайс-лист 23MET", []string{"A"}, []string{"x"})), nil
}

func TestExtractPageUnreadable(t *testing.T) {
	t.Parallel()

	e := newExtractor(t, failingReader{fail: "bad.html"}, nil, Config{})
	snaps := []crawler.Snapshot{{Path: "bad.html"}, {Path: "ok.html"}}

	table, report, err := e.Run(context.Background(), snaps)
	require.NoError(t, err)
	require.Len(t, table.Records, 1)
	require.Len(t, report.Pages, 2)
	assert.Equal(t, PageUnreadable, report.Pages[0].Status)
	assert.Contains(t, report.Pages[0].Error, "disk gone")
	assert.Equal(t, []string{"bad.html"}, report.Unusable)
}

func TestRunHonoursCancellation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, map[string]string{
		"a.html": priceList("Сталь | Тула | прайс-лист 23MET", []string{"A"}, []string{"x"}),
	})
	e := newExtractor(t, fx.store, nil, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := e.Run(ctx, fx.snapshots)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolveMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		want     Metadata
		strategy string
	}{
		{
			"title",
			`<html><head><title>УТК-Сталь | Москва прайс-лист | 23MET</title></head></html>`,
			Metadata{"УТК-Сталь", "Москва"}, "title",
		},
		{
			"description",
			`<html><head><title>23MET</title><meta name="description" content="прайс-лист УТК-Сталь Москва"></head></html>`,
			Metadata{"УТК-Сталь", "Москва"}, "description",
		},
		{
			"heading",
			`<html><head><title>23MET</title></head><body><h1 class="h1_plist">Металлбаза | Омск</h1></body></html>`,
			Metadata{"Металлбаза", "Омск"}, "heading",
		},
		{
			"title with empty city falls through",
			`<html><head><title>Металлбаза | прайс-лист</title></head><body><h1 class="h1_plist">Металлбаза | Омск</h1></body></html>`,
			Metadata{"Металлбаза", "Омск"}, "heading",
		},
		{
			"defaults",
			`<html><head><title>23MET</title></head></html>`,
			Metadata{DefaultCompany, DefaultCity}, "default",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.html))
			require.NoError(t, err)
			got, strategy := ResolveMetadata(doc, DefaultStrategies())
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.strategy, strategy)
		})
	}
}

func TestContainerHeadingStrategy(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="plist-page-title"><h1 class="h1_plist">Завод | Пермь</h1></div>`))
	require.NoError(t, err)
	md, ok := ContainerHeadingStrategy().Extract(doc)
	require.True(t, ok)
	assert.Equal(t, Metadata{"Завод", "Пермь"}, md)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	f, err := filter.New(filter.Config{})
	require.NoError(t, err)
	_, err = New(nil, f, Config{}, nil)
	require.Error(t, err)
	_, err = New(memory.NewStore(), nil, Config{}, nil)
	require.Error(t, err)
}
