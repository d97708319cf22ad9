// Package clock abstracts wall-clock time so activity timestamps and session
// expiry can be driven deterministically in tests.
package clock

import "time"

// Clock reports the current wall-clock time.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Millis returns t as milliseconds since the Unix epoch, the unit used for
// activity timestamps and token expiry.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
