package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSessionStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected bool
	}{
		{"disconnected", SessionStatusDisconnected, true},
		{"connecting", SessionStatusConnecting, true},
		{"connected", SessionStatusConnected, true},
		{"failed", SessionStatusFailed, true},
		{"unknown status", "rebooting", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidSessionStatus(tt.status))
		})
	}
}

func TestSessionUpdateColumns_ProtectsIdentity(t *testing.T) {
	cols := SessionUpdateColumns()
	assert.NotContains(t, cols, "id")
	assert.NotContains(t, cols, "external_id")
	assert.NotContains(t, cols, "admin_id")
	assert.NotContains(t, cols, "org_id")
	assert.NotContains(t, cols, "last_message_ts")
}

func TestValidSyncKind(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		expected bool
	}{
		{"initial", SyncKindInitial, true},
		{"gapfill", SyncKindGapFill, true},
		{"manual", SyncKindManual, true},
		{"unknown kind", "full", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidSyncKind(tt.kind))
		})
	}
}

func TestSyncRun_Terminal(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected bool
	}{
		{"started is live", SyncStatusStarted, false},
		{"completed is terminal", SyncStatusCompleted, true},
		{"failed is terminal", SyncStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &SyncRun{Status: tt.status}
			assert.Equal(t, tt.expected, r.Terminal())
		})
	}
}
