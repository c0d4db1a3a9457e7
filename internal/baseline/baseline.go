// Package baseline loads the known identifier universe and writes snapshots
// of collected identifiers in the same format.
package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// Document is the on-disk baseline format.
type Document struct {
	WorkIDs []string `json:"workIds"`
}

// ObjectReader reads one object by path.
type ObjectReader interface {
	ReadObject(ctx context.Context, path string) ([]byte, error)
}

// Parse decodes a baseline document. Entries that are not valid identifiers
// are skipped and counted; duplicates are dropped.
func Parse(data []byte) ([]catalog.Identifier, int, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode baseline: %w", err)
	}
	set := catalog.NewIdentifierSet()
	invalid := 0
	for _, raw := range doc.WorkIDs {
		id, err := catalog.ParseIdentifier(strings.TrimSpace(raw))
		if err != nil {
			invalid++
			continue
		}
		set.Add(id)
	}
	return set.Slice(), invalid, nil
}

// Encode renders ids as a baseline document.
func Encode(ids []catalog.Identifier) ([]byte, error) {
	doc := Document{WorkIDs: make([]string, len(ids))}
	for i, id := range ids {
		doc.WorkIDs[i] = id.String()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode baseline: %w", err)
	}
	return data, nil
}

// Source implements catalog.BaselineSource over an ObjectReader.
type Source struct {
	reader ObjectReader
	path   string
	logger *zap.Logger
}

// NewSource returns a Source reading path from reader. A nil reader or an
// empty path yields an empty baseline.
func NewSource(reader ObjectReader, path string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{reader: reader, path: path, logger: logger}
}

// Load implements catalog.BaselineSource.
func (s *Source) Load(ctx context.Context) ([]catalog.Identifier, error) {
	if s.reader == nil || s.path == "" {
		s.logger.Info("no baseline configured, validation will be skipped")
		return []catalog.Identifier{}, nil
	}
	data, err := s.reader.ReadObject(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("read baseline %s: %w", s.path, err)
	}
	ids, invalid, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", s.path, err)
	}
	if invalid > 0 {
		s.logger.Warn("baseline contains invalid identifiers", zap.Int("invalid", invalid), zap.String("path", s.path))
	}
	s.logger.Info("baseline loaded", zap.Int("identifiers", len(ids)), zap.String("path", s.path))
	return ids, nil
}

// FileReader reads objects from the local filesystem by absolute or relative path.
type FileReader struct{}

// ReadObject implements ObjectReader.
func (FileReader) ReadObject(_ context.Context, path string) ([]byte, error) {
	// #nosec G304 -- the baseline path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// IsNotExist reports whether err means the baseline object is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
