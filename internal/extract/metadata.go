package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fallback metadata when no strategy matches.
const (
	DefaultCompany = "Неизвестная компания"
	DefaultCity    = "Неизвестный город"
)

const priceListMarker = "прайс-лист"

// Metadata is the company and city a price list belongs to.
type Metadata struct {
	Company string
	City    string
}

// MetadataStrategy pulls company and city from one place in a page.
type MetadataStrategy struct {
	Name    string
	Extract func(doc *goquery.Document) (Metadata, bool)
}

// DefaultStrategies returns the 23met.ru chain, most reliable first.
func DefaultStrategies() []MetadataStrategy {
	return []MetadataStrategy{
		TitleStrategy(),
		DescriptionStrategy(),
		HeadingStrategy(),
		ContainerHeadingStrategy(),
	}
}

// TitleStrategy reads "Company | City | прайс-лист ..." from <title>.
func TitleStrategy() MetadataStrategy {
	return MetadataStrategy{Name: "title", Extract: func(doc *goquery.Document) (Metadata, bool) {
		md, ok := splitPipes(doc.Find("title").First().Text())
		if !ok {
			return Metadata{}, false
		}
		if i := strings.Index(md.City, priceListMarker); i >= 0 {
			md.City = strings.TrimSpace(md.City[:i])
		}
		return md, md.complete()
	}}
}

// DescriptionStrategy reads "прайс-лист Company City" from the meta description.
func DescriptionStrategy() MetadataStrategy {
	return MetadataStrategy{Name: "description", Extract: func(doc *goquery.Document) (Metadata, bool) {
		content, ok := doc.Find(`meta[name="description"]`).First().Attr("content")
		if !ok || !strings.Contains(content, priceListMarker) {
			return Metadata{}, false
		}
		fields := strings.Fields(strings.ReplaceAll(content, priceListMarker, ""))
		if len(fields) < 2 {
			return Metadata{}, false
		}
		return Metadata{Company: fields[0], City: fields[1]}, true
	}}
}

// HeadingStrategy reads "Company | City" from the price-list heading.
func HeadingStrategy() MetadataStrategy {
	return headingStrategy("heading", "h1.h1_plist")
}

// ContainerHeadingStrategy reads the heading inside the page title container.
func ContainerHeadingStrategy() MetadataStrategy {
	return headingStrategy("container_heading", "div#plist-page-title h1.h1_plist")
}

func headingStrategy(name, selector string) MetadataStrategy {
	return MetadataStrategy{Name: name, Extract: func(doc *goquery.Document) (Metadata, bool) {
		md, ok := splitPipes(doc.Find(selector).First().Text())
		return md, ok && md.complete()
	}}
}

// ResolveMetadata runs strategies in order and returns the first complete
// match, or the defaults. The second value names the strategy that matched.
func ResolveMetadata(doc *goquery.Document, strategies []MetadataStrategy) (Metadata, string) {
	for _, s := range strategies {
		if md, ok := s.Extract(doc); ok {
			return md, s.Name
		}
	}
	return Metadata{Company: DefaultCompany, City: DefaultCity}, "default"
}

func splitPipes(text string) (Metadata, bool) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "|") {
		return Metadata{}, false
	}
	parts := strings.Split(text, "|")
	return Metadata{
		Company: strings.TrimSpace(parts[0]),
		City:    strings.TrimSpace(parts[1]),
	}, true
}

func (m Metadata) complete() bool {
	return m.Company != "" && m.City != ""
}
