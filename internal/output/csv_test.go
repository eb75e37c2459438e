package output

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
)

func TestWriteTable(t *testing.T) {
	t.Parallel()

	cols := dataset.NewColumnSet("Наименование", "Цена, руб")
	first := dataset.NewRecord(cols)
	first.Set("Наименование", "Труба, 57х3")
	first.Set("Цена, руб", "120 000")
	second := dataset.NewRecord(cols)
	second.Set("Наименование", "Лист \"4\"")
	table := dataset.Table{Columns: cols.Names(), Records: []dataset.Record{first, second}}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, table))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"", "Наименование", "Цена, руб"},
		{"0", "Труба, 57х3", "120 000"},
		{"1", "Лист \"4\"", ""},
	}, rows)
}

func TestEncodeEmptyTable(t *testing.T) {
	t.Parallel()

	data, err := Encode(dataset.Table{})
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")), "header only")
}

func TestWriteTableRejectsRaggedRecords(t *testing.T) {
	t.Parallel()

	table := dataset.Table{Columns: []string{"A"}, Records: []dataset.Record{{"B": nil}}}
	_, err := Encode(table)
	require.Error(t, err)
}
