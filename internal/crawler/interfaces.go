package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// SnapshotStore persists fetched pages, one file per name.
type SnapshotStore interface {
	Put(ctx context.Context, name string, sourceURL string, data []byte) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Read(ctx context.Context, snapshot Snapshot) ([]byte, error)
	Purge(ctx context.Context) error
}

// BlobStore writes run artifacts (URL lists, proxy lists, tables) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// PageFilter decides whether a fetched page is worth keeping.
type PageFilter interface {
	AcceptPage(html string) bool
}

// Limiter hands out fetch permits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// RetryPolicy decides whether and when a failed fetch is tried again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes digests for snapshot naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Progress receives one tick per finished target.
type Progress interface {
	Add(n int) error
}
