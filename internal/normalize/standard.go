package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// StandardUnknown is the type tag for a missing or unparsable standard code.
const StandardUnknown = "не указан"

var standardRe = regexp.MustCompile(`^([А-ЯЁA-Z]+)([\d.-]+?)(?:-(\d{4}|\d{2}))?$`)

// Standard is the parsed form of a standard code such as "ГОСТ 8732-78".
type Standard struct {
	Type   string
	Number *string
	Year   int
}

// ClassifyStandard splits a standard code into type, number and year. A
// two-digit year is read as 19xx; a missing year is 0.
func ClassifyStandard(raw string) Standard {
	s := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "")
	m := standardRe.FindStringSubmatch(s)
	if m == nil {
		return Standard{Type: StandardUnknown}
	}
	out := Standard{Type: m[1], Number: ptr(m[2])}
	switch year := m[3]; len(year) {
	case 2:
		y, _ := strconv.Atoi(year)
		out.Year = 1900 + y
	case 4:
		out.Year, _ = strconv.Atoi(year)
	}
	return out
}
