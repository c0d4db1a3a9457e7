// Package sha256 digests identifier sets for snapshot object names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
)

// Digester implements catalog.SetDigester. The digest covers the sorted,
// de-duplicated identifiers, each terminated by a newline.
type Digester struct{}

// New returns a Digester.
func New() Digester {
	return Digester{}
}

// Digest returns the hex SHA-256 of the canonical form of ids.
func (Digester) Digest(ids []catalog.Identifier) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
