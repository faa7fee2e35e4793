package utils

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func baseStreamConfig() nats.StreamConfig {
	return nats.StreamConfig{
		Name:      "events-stream",
		Retention: nats.LimitsPolicy,
		MaxMsgs:   1000,
		MaxAge:    time.Hour,
		Storage:   nats.FileStorage,
		Subjects:  []string{"v1.>"},
	}
}

func TestStreamConfigEqual(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*nats.StreamConfig)
		expected bool
	}{
		{"identical configs", func(c *nats.StreamConfig) {}, true},
		{"different name", func(c *nats.StreamConfig) { c.Name = "other-stream" }, false},
		{"different retention", func(c *nats.StreamConfig) { c.Retention = nats.InterestPolicy }, false},
		{"different max msgs", func(c *nats.StreamConfig) { c.MaxMsgs = 2000 }, false},
		{"different max age", func(c *nats.StreamConfig) { c.MaxAge = 2 * time.Hour }, false},
		{"different storage", func(c *nats.StreamConfig) { c.Storage = nats.MemoryStorage }, false},
		{"extra subject", func(c *nats.StreamConfig) { c.Subjects = append(c.Subjects, "v2.>") }, false},
		{"different subject", func(c *nats.StreamConfig) { c.Subjects = []string{"v2.>"} }, false},
		{"ignores server-assigned fields", func(c *nats.StreamConfig) { c.Description = "managed" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseStreamConfig()
			b := baseStreamConfig()
			tt.mutate(&b)
			assert.Equal(t, tt.expected, StreamConfigEqual(a, b))
		})
	}
}

func baseConsumerConfig() nats.ConsumerConfig {
	return nats.ConsumerConfig{
		Durable:       "events-consumer",
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: "v1.>",
		MaxDeliver:    5,
	}
}

func TestConsumerConfigEqual(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*nats.ConsumerConfig)
		expected bool
	}{
		{"identical configs", func(c *nats.ConsumerConfig) {}, true},
		{"different durable", func(c *nats.ConsumerConfig) { c.Durable = "other" }, false},
		{"different ack policy", func(c *nats.ConsumerConfig) { c.AckPolicy = nats.AckAllPolicy }, false},
		{"different filter subject", func(c *nats.ConsumerConfig) { c.FilterSubject = "v2.>" }, false},
		{"different max deliver", func(c *nats.ConsumerConfig) { c.MaxDeliver = 10 }, false},
		{"ignores unmanaged fields", func(c *nats.ConsumerConfig) { c.MaxAckPending = 500 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseConsumerConfig()
			b := baseConsumerConfig()
			tt.mutate(&b)
			assert.Equal(t, tt.expected, ConsumerConfigEqual(a, b))
		})
	}
}
