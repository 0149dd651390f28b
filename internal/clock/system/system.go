// Package system provides the wall clock.
package system

import "time"

// StampLayout formats timestamps embedded in output file names.
const StampLayout = "20060102T150405Z"

// Clock implements afd.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stamp renders t for use in a file name, e.g. log_links_<stamp>.tsv.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}
