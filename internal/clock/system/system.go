// Package system provides the wall clock used for scrape timestamps.
package system

import "time"

// Clock satisfies crawler.Clock and memory.Clock. Times are UTC and truncated
// to microseconds, the precision Postgres keeps for TIMESTAMPTZ, so a
// timestamp reads back from either store exactly as it was written.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time at microsecond precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
