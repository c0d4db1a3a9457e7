package catalog

import (
	"context"
	"io"
	"time"
)

// PageFetcher retrieves one search page. Implementations never retry.
type PageFetcher interface {
	Fetch(ctx context.Context, page int) (PageResult, error)
}

// Extractor pulls validated identifiers out of a markup fragment.
type Extractor interface {
	Extract(fragment string) []Identifier
}

// RestrictionStore persists restriction records keyed by identifier.
type RestrictionStore interface {
	// Known returns the subset of ids that already have a record.
	Known(ctx context.Context, ids []Identifier) (map[Identifier]bool, error)
	// Upsert creates the record or bumps its attempt count and last attempt
	// time, leaving FirstDetectedAt untouched.
	Upsert(ctx context.Context, rec RestrictionUpsert) (RestrictionRecord, error)
	// Get loads one record.
	Get(ctx context.Context, id Identifier) (RestrictionRecord, error)
}

// ItemStore flags catalog item documents as region restricted.
type ItemStore interface {
	// MarkRestricted merges the flag into the item, creating a placeholder
	// document when the item does not exist. It reports whether a placeholder
	// was created.
	MarkRestricted(ctx context.Context, r ItemRestriction) (bool, error)
}

// BaselineSource loads the previously known identifier universe.
type BaselineSource interface {
	Load(ctx context.Context) ([]Identifier, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes reports to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SetDigester names an identifier set independently of order and duplicates.
type SetDigester interface {
	Digest(ids []Identifier) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
