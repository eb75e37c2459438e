package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const priceListPage = `<html><head><title>МеталлСервис | Москва | Прайс-лист 23MET</title></head>
<body><table class="tablesorter">
<thead><tr><th>Наименование</th><th>Размер</th></tr></thead>
<tbody>
<tr><td>Труба ВГП</td><td>20</td></tr>
<tr><td>Арматура</td><td>12</td></tr>
</tbody></table></body></html>`

func newFilter(t *testing.T, keywords []string, mode Mode) *Filter {
	t.Helper()
	f, err := New(Config{Keywords: keywords, Mode: mode})
	require.NoError(t, err)
	return f
}

func TestAcceptPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		keywords []string
		mode     Mode
		want     bool
	}{
		{"price list without keywords", priceListPage, nil, "", true},
		{"any keyword present", priceListPage, []string{"Труба ВГП", "Швеллер"}, ModeAny, true},
		{"all keywords required", priceListPage, []string{"Труба ВГП", "Швеллер"}, ModeAll, false},
		{"all keywords present", priceListPage, []string{"труба вгп", "арматура"}, ModeAll, true},
		{"no keyword present", priceListPage, []string{"Швеллер"}, ModeAny, false},
		{
			"title lacks price list marker",
			`<html><head><title>23MET | Новости</title></head><body><table class="tablesorter"><tr><td>Труба ВГП</td></tr></table></body></html>`,
			nil, "", false,
		},
		{
			"title lacks domain marker",
			`<html><head><title>Прайс-лист</title></head><body><table class="tablesorter"></table></body></html>`,
			nil, "", false,
		},
		{
			"no price tables",
			`<html><head><title>Прайс-лист 23MET</title></head><body><table><tr><td>Труба ВГП</td></tr></table></body></html>`,
			[]string{"Труба ВГП"}, ModeAny, false,
		},
		{
			"no price tables without keywords",
			`<html><head><title>Прайс-лист 23MET</title></head><body></body></html>`,
			nil, "", false,
		},
		{"no title at all", `<html><body><table class="tablesorter"></table></body></html>`, nil, "", false},
		{"empty page", "", nil, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFilter(t, tc.keywords, tc.mode)
			assert.Equal(t, tc.want, f.AcceptPage(tc.html))
		})
	}
}

func TestAcceptRow(t *testing.T) {
	t.Parallel()

	anyFilter := newFilter(t, []string{"Труба ВГП", "Труба э/с"}, ModeAny)
	assert.True(t, anyFilter.AcceptRow([]string{" Труба ВГП ", "20"}))
	assert.True(t, anyFilter.AcceptRow([]string{"ТРУБА Э/С", "57x3"}))
	assert.False(t, anyFilter.AcceptRow([]string{"Арматура", "12"}))

	allFilter := newFilter(t, []string{"труба", "20"}, ModeAll)
	assert.True(t, allFilter.AcceptRow([]string{"Труба ВГП", "20"}))
	assert.False(t, allFilter.AcceptRow([]string{"Труба ВГП", "32"}))

	// Cells are joined with single spaces, so a keyword may span cells.
	spanning := newFilter(t, []string{"вгп 20"}, ModeAny)
	assert.True(t, spanning.AcceptRow([]string{"Труба ВГП", " 20"}))

	open := newFilter(t, nil, "")
	assert.True(t, open.AcceptRow([]string{"anything"}))
	assert.True(t, open.AcceptRow(nil))
}

func TestAcceptRowIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFilter(t, []string{"Труба ВГП", "Труба б/ш г/д"}, ModeAny)
	rows := [][]string{
		{"Труба ВГП", "15x2.8"},
		{"Лист г/к", "3"},
		{"Труба б/ш г/д", "57x4"},
		{"", ""},
		{"труба вгп оц.", "20"},
	}
	filterRows := func(in [][]string) [][]string {
		var out [][]string
		for _, row := range in {
			if f.AcceptRow(row) {
				out = append(out, row)
			}
		}
		return out
	}
	once := filterRows(rows)
	twice := filterRows(once)
	assert.Equal(t, once, twice)
	assert.Len(t, once, 3)
}

func TestNewRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Mode: "some"})
	require.Error(t, err)

	f, err := New(Config{Mode: " ALL ", Keywords: []string{"  ", "x"}})
	require.NoError(t, err)
	assert.Equal(t, ModeAll, f.mode)
	assert.Equal(t, []string{"x"}, f.keywords)
}

func TestAcceptNonEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, AcceptNonEmpty{}.AcceptPage("<table></table>"))
	assert.False(t, AcceptNonEmpty{}.AcceptPage("  \n"))
}
