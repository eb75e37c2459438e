package normalize

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/metal-price-harvester/internal/dataset"
)

// PricePrefix marks per-category price columns, e.g. "Цена, руб/т".
const PricePrefix = "Цена, "

const callForPrice = "звоните"

var priceRe = regexp.MustCompile(`^([\d\s.,]+)(?:\s+(.+))?$`)

// Price is the unified price of one row.
type Price struct {
	Value        *float64
	Category     *string
	Condition    *string
	CallForPrice bool
}

// PriceColumns returns the per-category price columns of columns, in order.
func PriceColumns(columns []string) []string {
	var out []string
	for _, c := range columns {
		if strings.Contains(c, PricePrefix) {
			out = append(out, c)
		}
	}
	return out
}

// UnifyPrice collapses the per-category price columns of rec into one price.
// The last non-null column in column order wins.
func UnifyPrice(columns []string, rec dataset.Record) Price {
	var column, text string
	for _, c := range PriceColumns(columns) {
		if v, ok := rec.Get(c); ok {
			column, text = c, strings.TrimSpace(v)
		}
	}
	if column == "" {
		return Price{}
	}
	p := Price{Category: ptr(strings.Replace(column, PricePrefix, "", 1))}
	if strings.ToLower(text) == callForPrice {
		p.CallForPrice = true
		return p
	}
	p.Value, p.Condition = ParsePrice(text)
	return p
}

// ParsePrice splits "45 000,50 от 5т" into 45000.5 and "от 5т". Text that is
// not a number is returned whole as the condition.
func ParsePrice(text string) (*float64, *string) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil, textPtr(text)
	}
	digits := strings.ReplaceAll(strings.Join(strings.Fields(m[1]), ""), ",", ".")
	v, ok := parseFloat(digits)
	if !ok {
		return nil, textPtr(text)
	}
	return ptr(v), textPtr(m[2])
}
