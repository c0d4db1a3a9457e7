package baseline

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// Snapshotter writes collected identifiers as content-addressed baseline documents.
type Snapshotter struct {
	store  catalog.BlobStore
	digest catalog.SetDigester
	clock  catalog.Clock
	prefix string
}

// NewSnapshotter wires a Snapshotter. Objects land under
// prefix/<date>/<set digest>.json, so collecting the same catalog twice in a
// day rewrites one object.
func NewSnapshotter(store catalog.BlobStore, digest catalog.SetDigester, clock catalog.Clock, prefix string) *Snapshotter {
	return &Snapshotter{store: store, digest: digest, clock: clock, prefix: prefix}
}

// Write stores ids and returns the object URI.
func (s *Snapshotter) Write(ctx context.Context, ids []catalog.Identifier) (string, error) {
	data, err := Encode(ids)
	if err != nil {
		return "", err
	}
	name := s.digest.Digest(ids) + ".json"
	objectPath := path.Join(s.prefix, s.clock.Now().UTC().Format("2006-01-02"), name)
	uri, err := s.store.PutObject(ctx, objectPath, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return uri, nil
}
