package catalog

import (
	"errors"
	"fmt"
	"regexp"
)

// IdentifierPrefix is the fixed two-letter prefix of every catalog identifier.
const IdentifierPrefix = "RJ"

// ErrInvalidIdentifier is returned when a string fails the identifier format.
var ErrInvalidIdentifier = errors.New("invalid catalog identifier")

var identifierPattern = regexp.MustCompile(`^` + IdentifierPrefix + `[0-9]{6,8}$`)

// Identifier is a validated catalog item key such as RJ01234567.
type Identifier string

// ParseIdentifier validates raw and returns it as an Identifier.
// The match is exact: no trimming, no case folding.
func ParseIdentifier(raw string) (Identifier, error) {
	if !identifierPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return Identifier(raw), nil
}

// IsValidIdentifier reports whether raw matches the identifier format.
func IsValidIdentifier(raw string) bool {
	return identifierPattern.MatchString(raw)
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return string(id)
}

// IdentifierSet is an insertion-ordered set of identifiers.
// The zero value is ready to use.
type IdentifierSet struct {
	order []Identifier
	index map[Identifier]struct{}
}

// NewIdentifierSet builds a set from ids, keeping first-seen order.
func NewIdentifierSet(ids ...Identifier) *IdentifierSet {
	s := &IdentifierSet{}
	s.AddAll(ids)
	return s
}

// Add inserts id and reports whether it was new.
func (s *IdentifierSet) Add(id Identifier) bool {
	if s.index == nil {
		s.index = make(map[Identifier]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// AddAll inserts every id and returns how many were new.
func (s *IdentifierSet) AddAll(ids []Identifier) int {
	added := 0
	for _, id := range ids {
		if s.Add(id) {
			added++
		}
	}
	return added
}

// Contains reports whether id is in the set.
func (s *IdentifierSet) Contains(id Identifier) bool {
	if s == nil || s.index == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Len returns the number of distinct identifiers.
func (s *IdentifierSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Slice returns a copy of the identifiers in insertion order.
func (s *IdentifierSet) Slice() []Identifier {
	if s == nil {
		return []Identifier{}
	}
	out := make([]Identifier, len(s.order))
	copy(out, s.order)
	return out
}

// Difference returns the members of a not present in b, in a's order.
func Difference(a, b []Identifier) []Identifier {
	exclude := NewIdentifierSet(b...)
	out := make([]Identifier, 0)
	seen := make(map[Identifier]struct{}, len(a))
	for _, id := range a {
		if exclude.Contains(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
