package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int
		expected string
	}{
		{"zero bytes", 0, "0 B"},
		{"below one kB", 999, "999 B"},
		{"exactly one kB", 1000, "1.0 kB"},
		{"fractional kB", 1500, "1.5 kB"},
		{"megabytes", 2_500_000, "2.5 MB"},
		{"gigabytes", 3_000_000_000, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ByteCountSI(tt.bytes))
		})
	}
}
