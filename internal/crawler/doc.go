// Package crawler holds the crawl orchestrator and the types shared by the
// harvesting pipeline: targets, snapshots, fetch requests, the error taxonomy,
// and the collaborator interfaces implemented by fetchers, stores, and filters.
package crawler
