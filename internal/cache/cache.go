package cache

import (
	"context"
	"net/http"
	"time"
)

// Response is an immutable snapshot of a network response at capture time.
// There is no expiry metadata: once stored, an entry is served as-is until
// its generation is dropped.
type Response struct {
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Clone returns a deep copy safe for mutation by callers.
func (r Response) Clone() Response {
	out := Response{
		Status:     r.Status,
		Body:       append([]byte(nil), r.Body...),
		CapturedAt: r.CapturedAt,
	}
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	return out
}

// Generation is one named snapshot of the cache store, mapping request
// identity (method + URL) to a stored response.
type Generation interface {
	// Match returns the stored response for key if present.
	Match(ctx context.Context, key string) (Response, bool, error)
	// Put stores a response under key, replacing any previous entry.
	Put(ctx context.Context, key string, resp Response) error
	// Delete removes a single entry, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists every request identity stored in this generation.
	Keys(ctx context.Context) ([]string, error)
}

// Store manages named cache generations. At most one generation is current
// at a time; the rest are stale and eligible for cleanup.
type Store interface {
	// Open returns the generation with the given name, creating it if absent.
	Open(ctx context.Context, name string) (Generation, error)
	// Names enumerates every generation name known to the store.
	Names(ctx context.Context) ([]string, error)
	// Drop deletes an entire generation, reporting whether it existed.
	Drop(ctx context.Context, name string) (bool, error)
}

// Key builds the request identity for a method and URL.
func Key(method, url string) string {
	return method + " " + url
}
