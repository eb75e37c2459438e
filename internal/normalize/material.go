package normalize

import (
	"regexp"
	"strings"
)

// Material family tags.
const (
	MaterialStainless   = "Нержавеющая сталь"
	MaterialAluminum    = "Алюминиевый сплав"
	MaterialBrass       = "Латунь"
	MaterialBronze      = "Бронза"
	MaterialCastIron    = "Чугун"
	MaterialCopper      = "Медь"
	MaterialUnspecified = "Не указан"
	MaterialSteel       = "Сталь"
)

const unspecified = "не указан"

// Material is the parsed form of a steel grade cell.
type Material struct {
	Family       string
	PrimaryGrade string
	Weldable     bool
}

var (
	stainlessRe  = regexp.MustCompile(`\d*х\d+н\d+`)
	gradeSplitRe = regexp.MustCompile(`[\s/,-]+`)
	weldableRe   = regexp.MustCompile(`^[авс]\d+с$`)
)

func containsAny(markers ...string) func(string) bool {
	return func(s string) bool {
		for _, m := range markers {
			if strings.Contains(s, m) {
				return true
			}
		}
		return false
	}
}

func family(tag string) func(string) (string, bool) {
	return func(string) (string, bool) { return tag, true }
}

var materialRules = cascade[string, string]{
	{
		name: MaterialStainless,
		matches: func(s string) bool {
			return strings.Contains(s, "aisi") || stainlessRe.MatchString(s)
		},
		extract: family(MaterialStainless),
	},
	{name: MaterialAluminum, matches: containsAny("амг", "ад", "д16", "в95", "ак4", "ак6"), extract: family(MaterialAluminum)},
	{name: MaterialBrass, matches: containsAny("лс", "л6"), extract: family(MaterialBrass)},
	{name: MaterialBronze, matches: containsAny("бр"), extract: family(MaterialBronze)},
	{name: MaterialCastIron, matches: containsAny("чугун"), extract: family(MaterialCastIron)},
	{name: MaterialCopper, matches: containsAny("м1", "м2", "м3"), extract: family(MaterialCopper)},
	{name: MaterialUnspecified, matches: func(s string) bool { return s == unspecified }, extract: family(MaterialUnspecified)},
	{name: MaterialSteel, extract: family(MaterialSteel)},
}

// ClassifyMaterial maps a grade such as "Ст3сп/пс" or "AISI 304" to a material
// family, its primary grade token and a weldability flag.
func ClassifyMaterial(raw string) Material {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		s = unspecified
	}
	tag, _, _ := materialRules.run(s)
	m := Material{Family: tag, PrimaryGrade: unspecified}
	if s != unspecified {
		m.PrimaryGrade = gradeSplitRe.Split(s, 2)[0]
	}
	m.Weldable = weldableRe.MatchString(m.PrimaryGrade)
	return m
}
