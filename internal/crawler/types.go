// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// Target is one URL to fetch. It is never mutated after it is handed to the orchestrator.
type Target struct {
	URL    string
	Accept string
	// Name overrides the snapshot file name derived from the URL.
	Name   string
}

// Snapshot is a stored copy of a fetched page.
type Snapshot struct {
	URL       string    `json:"url"`
	Path      string    `json:"local_path"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Stats counts table rows seen and kept on a page.
type Stats struct {
	TotalRows    int `json:"total_rows"`
	FilteredRows int `json:"filtered_rows"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.TotalRows += other.TotalRows
	s.FilteredRows += other.FilteredRows
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Accept  string
	Headers http.Header
	// Proxies switches the fetcher into rotation mode when non-empty.
	Proxies []string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Proxy      string
}

// Outcome labels how a single target ended.
type Outcome string

// Target outcomes reported by the orchestrator.
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
	OutcomeBlocked  Outcome = "blocked"
)

// RunSummary aggregates target outcomes for one orchestrator run.
type RunSummary struct {
	Targets   int           `json:"targets"`
	Accepted  int           `json:"accepted"`
	Rejected  int           `json:"rejected"`
	Failed    int           `json:"failed"`
	Blocked   int           `json:"blocked"`
	Snapshots []Snapshot    `json:"snapshots"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (s *RunSummary) record(outcome Outcome) {
	switch outcome {
	case OutcomeAccepted:
		s.Accepted++
	case OutcomeRejected:
		s.Rejected++
	case OutcomeBlocked:
		s.Blocked++
	default:
		s.Failed++
	}
}
