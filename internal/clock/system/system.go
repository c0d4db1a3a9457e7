// Package system provides the wall clock used for run and restriction timestamps.
package system

import "time"

// Precision matches timestamptz so records read back from Postgres compare
// equal to the values that were written.
const Precision = time.Microsecond

// Clock implements catalog.Clock.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC, truncated to Precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}
