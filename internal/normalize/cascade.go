// Package normalize turns raw price-list cells into typed fields.
//
// Every classifier is a cascade of rules tried in priority order. A rule has
// an optional cheap predicate and an extractor; the first rule whose
// extractor succeeds wins. Classifiers are pure and total: any input,
// including the empty string, yields a defined result.
package normalize

import (
	"math"
	"strconv"
	"strings"
)

type rule[In, Out any] struct {
	name    string
	matches func(In) bool
	extract func(In) (Out, bool)
}

type cascade[In, Out any] []rule[In, Out]

func (c cascade[In, Out]) run(in In) (Out, string, bool) {
	for _, r := range c {
		if r.matches != nil && !r.matches(in) {
			continue
		}
		if out, ok := r.extract(in); ok {
			return out, r.name, true
		}
	}
	var zero Out
	return zero, "", false
}

func ptr[T any](v T) *T {
	return &v
}

func textPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseFloats(tokens []string) ([]float64, bool) {
	out := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, ok := parseFloat(tok)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func sorted2(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}
