package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Dimension type tags.
const (
	DimensionProfile      = "Профиль ГОСТ/СТО"
	DimensionEuroProfile  = "Европрофиль"
	DimensionRail         = "Рельс"
	DimensionDecking      = "Профнастил/Сетка"
	DimensionElectrode    = "Электрод/Марка"
	DimensionSheet        = "Лист/Рулон"
	DimensionGauge        = "Габарит"
	DimensionAngle        = "Уголок/Полоса"
	DimensionIrregular    = "Нестандартный"
	DimensionNumber       = "Число"
	DimensionUnrecognized = "Нераспознанный"
)

// Dimension is the parsed form of a size cell.
type Dimension struct {
	Type         string
	Grade        *string
	StandardSize *int
	SizeA        *float64
	SizeB        *float64
	SizeC        *float64
	Thickness    *float64
	RangeMin     *float64
	RangeMax     *float64
	Note         *string
}

type sizeInput struct {
	raw   string
	clean string
}

var (
	profileRe     = regexp.MustCompile(`(?i)^(\d+)([А-Яа-я]+)(\d+)([А-Яа-я]?)$`)
	euroProfileRe = regexp.MustCompile(`(?i)^(IPE|HE|UPN|I|H|U)([A-Z]*)(\d+)([A-Z]*)$`)
	railRe        = regexp.MustCompile(`(?i)^(Р|КР|К)(\d+)$`)
	deckingRe     = regexp.MustCompile(`^([А-Яа-я]+)\s+(.*)$`)
	electrodeRe   = regexp.MustCompile(`^([A-Za-z]+-?\d+L?-\d*)\s*(.*)$`)
	sheetRe       = regexp.MustCompile(`^([\d.]+)\s+(.*)$`)
	rangeRe       = regexp.MustCompile(`([\d.]+)-([\d.]+)`)
	numberTokenRe = regexp.MustCompile(`[\d.]+`)
	angleRe       = regexp.MustCompile(`(?i)^(\d+\.?\d*)([УП])$`)
	cyrillicRe    = regexp.MustCompile(`[А-Яа-я]`)
)

var dimensionRules = cascade[sizeInput, Dimension]{
	{name: DimensionProfile, extract: func(in sizeInput) (Dimension, bool) {
		m := profileRe.FindStringSubmatch(in.raw)
		if m == nil {
			return Dimension{}, false
		}
		size, err := strconv.Atoi(m[1])
		if err != nil {
			return Dimension{}, false
		}
		return Dimension{
			StandardSize: ptr(size),
			Grade:        ptr(strings.ToUpper(m[2]) + m[3] + strings.ToUpper(m[4])),
		}, true
	}},
	{name: DimensionEuroProfile, extract: func(in sizeInput) (Dimension, bool) {
		m := euroProfileRe.FindStringSubmatch(in.raw)
		if m == nil {
			return Dimension{}, false
		}
		a, ok := parseFloat(m[3])
		if !ok {
			return Dimension{}, false
		}
		return Dimension{Grade: ptr(strings.ToUpper(m[1]) + m[2] + m[3] + m[4]), SizeA: ptr(a)}, true
	}},
	{name: DimensionRail, extract: func(in sizeInput) (Dimension, bool) {
		m := railRe.FindStringSubmatch(in.raw)
		if m == nil {
			return Dimension{}, false
		}
		size, err := strconv.Atoi(m[2])
		if err != nil {
			return Dimension{}, false
		}
		return Dimension{Grade: ptr(strings.ToUpper(m[1]) + m[2]), StandardSize: ptr(size)}, true
	}},
	{name: DimensionDecking, extract: func(in sizeInput) (Dimension, bool) {
		m := deckingRe.FindStringSubmatch(in.clean)
		if m == nil {
			return Dimension{}, false
		}
		return Dimension{Grade: ptr(m[1]), Note: textPtr(m[2])}, true
	}},
	{name: DimensionElectrode, extract: func(in sizeInput) (Dimension, bool) {
		m := electrodeRe.FindStringSubmatch(in.clean)
		if m == nil {
			return Dimension{}, false
		}
		return Dimension{Grade: ptr(m[1]), Note: textPtr(m[2])}, true
	}},
	{name: DimensionSheet, extract: extractSheet},
	{
		name:    DimensionGauge,
		matches: func(in sizeInput) bool { return strings.Contains(in.clean, "x") && !strings.Contains(in.clean, "/") },
		extract: func(in sizeInput) (Dimension, bool) {
			dims, ok := parseFloats(numberTokenRe.FindAllString(in.clean, -1))
			if !ok {
				return Dimension{}, false
			}
			var d Dimension
			assignAxes(&d, dims)
			return d, true
		},
	},
	{name: DimensionAngle, extract: func(in sizeInput) (Dimension, bool) {
		m := angleRe.FindStringSubmatch(in.clean)
		if m == nil {
			return Dimension{}, false
		}
		a, ok := parseFloat(m[1])
		if !ok {
			return Dimension{}, false
		}
		return Dimension{SizeA: ptr(a), Grade: ptr(strings.ToUpper(m[2]))}, true
	}},
	{
		name:    DimensionIrregular,
		matches: func(in sizeInput) bool { return strings.Contains(in.clean, "/") || cyrillicRe.MatchString(in.clean) },
		extract: func(in sizeInput) (Dimension, bool) {
			return Dimension{Note: ptr(in.raw)}, true
		},
	},
	{name: DimensionNumber, extract: func(in sizeInput) (Dimension, bool) {
		a, ok := parseFloat(in.clean)
		if !ok {
			return Dimension{}, false
		}
		return Dimension{SizeA: ptr(a)}, true
	}},
}

// extractSheet handles "thickness rest" where rest is either a range or axes,
// e.g. "0.5 9-1000" or "5 1500x6000".
func extractSheet(in sizeInput) (Dimension, bool) {
	m := sheetRe.FindStringSubmatch(in.clean)
	if m == nil {
		return Dimension{}, false
	}
	rest := m[2]
	if !strings.Contains(rest, "x") && !strings.Contains(rest, "-") {
		return Dimension{}, false
	}
	thickness, ok := parseFloat(m[1])
	if !ok {
		return Dimension{}, false
	}
	d := Dimension{Thickness: ptr(thickness)}
	if r := rangeRe.FindStringSubmatch(rest); r != nil {
		lo, okLo := parseFloat(r[1])
		hi, okHi := parseFloat(r[2])
		if !okLo || !okHi {
			return Dimension{}, false
		}
		lo, hi = sorted2(lo, hi)
		d.RangeMin, d.RangeMax, d.Note = ptr(lo), ptr(hi), textPtr(rest)
		return d, true
	}
	dims, ok := parseFloats(numberTokenRe.FindAllString(rest, -1))
	if !ok {
		return Dimension{}, false
	}
	assignAxes(&d, dims)
	return d, true
}

func assignAxes(d *Dimension, dims []float64) {
	if len(dims) > 0 {
		d.SizeA = ptr(dims[0])
	}
	if len(dims) > 1 {
		d.SizeB = ptr(dims[1])
	}
	if len(dims) > 2 {
		d.SizeC = ptr(dims[2])
	}
}

// ClassifyDimension parses a size cell such as "20К1", "5 1500х6000" or
// "100х50х4". Unmatched input is tagged unrecognized with the text kept.
func ClassifyDimension(raw string) Dimension {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Dimension{Type: DimensionUnrecognized}
	}
	in := sizeInput{
		raw:   s,
		clean: strings.ReplaceAll(strings.ReplaceAll(s, ",", "."), "х", "x"),
	}
	d, tag, ok := dimensionRules.run(in)
	if !ok {
		return Dimension{Type: DimensionUnrecognized, Note: ptr(s)}
	}
	d.Type = tag
	return d
}
