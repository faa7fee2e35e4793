package utils

import (
	"github.com/nats-io/nats.go"
)

// StreamConfigEqual reports whether two stream configurations agree on the
// properties this service manages. Server-assigned fields are ignored.
func StreamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name ||
		a.Retention != b.Retention ||
		a.MaxMsgs != b.MaxMsgs ||
		a.MaxAge != b.MaxAge ||
		a.Storage != b.Storage {
		return false
	}
	return subjectsEqual(a.Subjects, b.Subjects)
}

func subjectsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ConsumerConfigEqual reports whether two consumer configurations agree on the
// properties this service manages.
func ConsumerConfigEqual(a, b nats.ConsumerConfig) bool {
	return a.Durable == b.Durable &&
		a.AckPolicy == b.AckPolicy &&
		a.FilterSubject == b.FilterSubject &&
		a.MaxDeliver == b.MaxDeliver
}
