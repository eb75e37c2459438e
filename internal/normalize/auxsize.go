package normalize

import (
	"regexp"
	"slices"
	"strings"
)

// AuxSize is the parsed form of the auxiliary size cell (lengths and packaging).
type AuxSize struct {
	MinLength *float64
	MaxLength *float64
	Packaging *string
	PriceNote *string
}

// Placeholders that mean "no data".
var auxPlaceholders = map[string]struct{}{
	"":       {},
	"nan":    {},
	"н.д":    {},
	"нд":     {},
	"н/д":    {},
	"с н/д":  {},
	"с ост.": {},
}

var (
	auxRangeRe  = regexp.MustCompile(`(\d+\.?\d*)\s*-\s*(\d+\.?\d*)`)
	auxNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	auxResidue  = regexp.MustCompile(`[\d.\s,]+`)
)

type auxInput struct {
	original string
	text     string
}

var auxRules = cascade[auxInput, AuxSize]{
	{
		name:    "range",
		matches: func(in auxInput) bool { return auxRangeRe.MatchString(in.text) },
		extract: func(in auxInput) (AuxSize, bool) {
			m := auxRangeRe.FindStringSubmatch(in.text)
			lo, okLo := parseFloat(m[1])
			hi, okHi := parseFloat(m[2])
			if !okLo || !okHi {
				return AuxSize{}, false
			}
			lo, hi = sorted2(lo, hi)
			note := strings.TrimSpace(auxRangeRe.ReplaceAllString(in.text, ""))
			return AuxSize{MinLength: ptr(lo), MaxLength: ptr(hi), PriceNote: textPtr(note)}, true
		},
	},
	{
		name:    "axes",
		matches: func(in auxInput) bool { return strings.ContainsAny(in.text, "хx") },
		extract: func(in auxInput) (AuxSize, bool) {
			return AuxSize{PriceNote: textPtr(in.original)}, true
		},
	},
	{
		name:    "up_to",
		matches: func(in auxInput) bool { return strings.HasPrefix(in.text, "до ") },
		extract: func(in auxInput) (AuxSize, bool) {
			out := AuxSize{PriceNote: textPtr(in.text)}
			if tok := auxNumberRe.FindString(in.text); tok != "" {
				if v, ok := parseFloat(tok); ok {
					out.MaxLength = ptr(v)
				}
			}
			return out, true
		},
	},
	{
		name: "numbers",
		extract: func(in auxInput) (AuxSize, bool) {
			values, ok := parseFloats(auxNumberRe.FindAllString(in.text, -1))
			if !ok || len(values) == 0 {
				return AuxSize{PriceNote: textPtr(in.text)}, true
			}
			slices.Sort(values)
			note := strings.TrimSpace(auxResidue.ReplaceAllString(in.text, ""))
			return AuxSize{
				MinLength: ptr(values[0]),
				MaxLength: ptr(values[len(values)-1]),
				PriceNote: textPtr(note),
			}, true
		},
	},
}

// ClassifyAuxSize parses the auxiliary size cell: a length, a length range,
// "до N", or a note, with an optional packaging keyword.
func ClassifyAuxSize(raw string) AuxSize {
	text := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := auxPlaceholders[text]; ok {
		return AuxSize{}
	}
	original := text

	var packaging *string
	switch {
	case strings.Contains(text, "бухты"):
		packaging = ptr("бухты")
		text = strings.TrimSpace(strings.ReplaceAll(text, "бухты", ""))
	case strings.Contains(text, "размотка"):
		packaging = ptr("размотка")
		text = strings.TrimSpace(strings.ReplaceAll(text, "размотка", ""))
	case strings.Contains(text, "мотки"), strings.Contains(text, "розетты"):
		packaging = ptr("мотки/розетты")
		text = strings.ReplaceAll(text, "мотки", "")
		text = strings.TrimSpace(strings.ReplaceAll(text, "розетты", ""))
	}

	out, _, _ := auxRules.run(auxInput{original: original, text: text})
	out.Packaging = packaging
	return out
}
