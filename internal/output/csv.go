// Package output renders unified tables as delimited files.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
)

// Default file names for the two tables a run produces.
const (
	RawFile        = "result.csv"
	NormalizedFile = "preprocessing_result.csv"
	ContentType    = "text/csv"
)

// WriteTable writes t as CSV. The first column is an unnamed zero-based row
// index, then one column per table column in order. Nulls become empty cells.
func WriteTable(w io.Writer, t dataset.Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, "")
	header = append(header, t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(t.Columns)+1)
	for i, rec := range t.Records {
		row[0] = strconv.Itoa(i)
		for j, col := range t.Columns {
			v, _ := rec.Get(col)
			row[j+1] = v
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Encode returns t rendered by WriteTable.
func Encode(t dataset.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
