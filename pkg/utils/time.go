package utils

import "time"

// Now returns the current time in UTC. All persisted timestamps go through
// this so rows compare consistently regardless of host timezone.
func Now() time.Time {
	return time.Now().UTC()
}

// UnixToTime converts a unix timestamp in seconds to a UTC time. Zero and
// negative inputs yield the zero time.
func UnixToTime(timestamp int64) time.Time {
	if timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(timestamp, 0).UTC()
}

// UnixToTimeWithMilliseconds converts a unix timestamp in milliseconds to a
// UTC time. Zero and negative inputs yield the zero time.
func UnixToTimeWithMilliseconds(timestamp int64) time.Time {
	if timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(timestamp/1000, (timestamp%1000)*int64(time.Millisecond)).UTC()
}

// FormatISO8601 formats t as RFC3339 in UTC.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
