// Package system supplies the wall clock used for job timestamps.
package system

import "time"

// Clock implements branding.Clock with the real time, always in UTC so
// stage timestamps compare cleanly across hosts.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
