// Package dataset holds the unified tabular model shared by the extractor, the
// normalizer, and the output sinks.
package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Synthetic columns attached to every record from page metadata.
const (
	ColumnCompany = "Компания"
	ColumnCity    = "Город"
)

// ColumnSet is an insertion-ordered set of column names.
type ColumnSet struct {
	names []string
	index map[string]int
}

// NewColumnSet returns a set seeded with names.
func NewColumnSet(names ...string) *ColumnSet {
	c := &ColumnSet{index: make(map[string]int)}
	for _, name := range names {
		c.Add(name)
	}
	return c
}

// Add appends name if it is not present yet and reports whether it was added.
func (c *ColumnSet) Add(name string) bool {
	if _, ok := c.index[name]; ok {
		return false
	}
	c.index[name] = len(c.names)
	c.names = append(c.names, name)
	return true
}

// Has reports membership.
func (c *ColumnSet) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Len returns the number of columns.
func (c *ColumnSet) Len() int {
	return len(c.names)
}

// Names returns a copy of the ordered column names.
func (c *ColumnSet) Names() []string {
	return append([]string(nil), c.names...)
}

// Record is one row keyed by column name. A nil value is an explicit null.
type Record map[string]*string

// NewRecord returns a record with every column of cols set to null.
func NewRecord(cols *ColumnSet) Record {
	r := make(Record, cols.Len())
	for _, name := range cols.names {
		r[name] = nil
	}
	return r
}

// Set stores value, turning blank strings into null.
func (r Record) Set(column, value string) {
	if strings.TrimSpace(value) == "" {
		r[column] = nil
		return
	}
	v := value
	r[column] = &v
}

// Get returns the value and whether it is non-null.
func (r Record) Get(column string) (string, bool) {
	v := r[column]
	if v == nil {
		return "", false
	}
	return *v, true
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}

// Table is an ordered list of records sharing one column order.
type Table struct {
	Columns []string
	Records []Record
}

// Validate checks that every record has exactly the table's columns.
func (t Table) Validate() error {
	want := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		want[c] = struct{}{}
	}
	for i, rec := range t.Records {
		if len(rec) != len(want) {
			return fmt.Errorf("record %d has %d keys, want %d", i, len(rec), len(want))
		}
		for k := range rec {
			if _, ok := want[k]; !ok {
				return fmt.Errorf("record %d has unexpected column %q", i, k)
			}
		}
	}
	return nil
}

// SortBy stable-sorts records by column. Nulls sort last.
func (t Table) SortBy(column string) {
	sort.SliceStable(t.Records, func(i, j int) bool {
		a, aok := t.Records[i].Get(column)
		b, bok := t.Records[j].Get(column)
		switch {
		case aok && bok:
			return a < b
		case aok:
			return true
		default:
			return false
		}
	})
}
