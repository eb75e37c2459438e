package extract

import "github.com/JakeFAU/metal-price-harvester/internal/crawler"

// PageStatus is the extraction outcome for one snapshot.
type PageStatus string

// Page outcomes.
const (
	PageAccepted    PageStatus = "accepted"
	PageNonMatching PageStatus = "non_matching"
	PageMalformed   PageStatus = "malformed"
	PageUnreadable  PageStatus = "unreadable"
	PageEmpty       PageStatus = "empty"
)

// PageReport describes what happened to one snapshot.
type PageReport struct {
	Path     string        `json:"path"`
	URL      string        `json:"url,omitempty"`
	Status   PageStatus    `json:"status"`
	Company  string        `json:"company,omitempty"`
	City     string        `json:"city,omitempty"`
	Strategy string        `json:"metadata_strategy,omitempty"`
	Stats    crawler.Stats `json:"stats"`
	Error    string        `json:"error,omitempty"`
}

// Report summarizes an extraction run.
type Report struct {
	Pages    []PageReport  `json:"pages"`
	Stats    crawler.Stats `json:"stats"`
	Unusable []string      `json:"unusable"`
}

// Accepted counts pages that contributed rows.
func (r Report) Accepted() int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == PageAccepted {
			n++
		}
	}
	return n
}

func (r *Report) add(p PageReport) {
	r.Pages = append(r.Pages, p)
	r.Stats.Add(p.Stats)
	if p.Status != PageAccepted {
		r.Unusable = append(r.Unusable, p.Path)
	}
}
