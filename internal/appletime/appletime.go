// Package appletime converts between the message store's native epoch and
// standard Unix-based time. The store counts from 2001-01-01 UTC; current
// rows record nanoseconds, rows written by older store versions record
// whole seconds.
package appletime

import "time"

// EpochOffset is the number of seconds between the Unix epoch and the
// store's native epoch (2001-01-01T00:00:00Z).
const EpochOffset int64 = 978307200

// nanoThreshold separates second-scale legacy values from nanosecond-scale
// ones. A second-scale value stays below ~1e10 for centuries; nanosecond
// values from any plausible date are far above 1e11.
const nanoThreshold int64 = 100_000_000_000

// ToTime converts a raw store timestamp to a time.Time. The second return
// is false when the raw value is zero, which the store uses for "no
// timestamp"; callers must treat that as absent, not as the epoch.
func ToTime(raw int64) (time.Time, bool) {
	if raw == 0 {
		return time.Time{}, false
	}
	secs := raw
	var nsec int64
	if raw > nanoThreshold || raw < -nanoThreshold {
		secs = raw / 1e9
		nsec = raw % 1e9
	}
	return time.Unix(secs+EpochOffset, nsec).UTC(), true
}

// FromTime converts a time.Time to a raw nanosecond-scale store timestamp.
// The zero time maps to raw zero ("no timestamp").
func FromTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return (t.Unix()-EpochOffset)*1e9 + int64(t.Nanosecond())
}
