// Package remote projects spine artifacts to and from a generic remote
// row-store through a four-capability backend interface.
package remote

import "context"

// Row is a remote row as fetched from a backend.
type Row struct {
	Properties map[string]any `json:"properties"`
	Body       string         `json:"body"`
}

// Backend is the minimal remote capability set. Implementations map these
// four calls onto a concrete service; errors should be *RemoteError so the
// projector can classify them.
type Backend interface {
	// Name identifies the backend for SyncMetadata keying.
	Name() string

	// Query resolves row ids under a view anchor matching the filter.
	Query(ctx context.Context, anchor string, filter map[string]string) ([]string, error)

	// Create inserts a row under the parent anchor and returns its id.
	Create(ctx context.Context, parentAnchor string, properties map[string]any, body string) (string, error)

	// Update rewrites a row's properties and, when non-empty, its body.
	Update(ctx context.Context, rowID string, properties map[string]any, body string) error

	// Fetch reads a row back.
	Fetch(ctx context.Context, rowID string) (*Row, error)
}
