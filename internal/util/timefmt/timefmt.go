package timefmt

import "time"

// ISO8601 is the ISO-8601 format used for timestamp serialization.
// Microseconds are zero-padded to a fixed width so that comparing two
// timestamps as strings is equivalent to comparing them as instants.
const ISO8601 = "2006-01-02T15:04:05.000000"

// Format formats a time.Time to the standard string representation.
func Format(t time.Time) string {
	return t.Format(ISO8601)
}

// Now returns the current time in the standard string representation.
func Now() string {
	return Format(time.Now())
}

// Parse parses a timestamp produced by Format.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(ISO8601, s, time.Local)
}
