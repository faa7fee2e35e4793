package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestAssignment_Target(t *testing.T) {
	tests := []struct {
		name     string
		memberID *string
		teamID   *string
		expected string
	}{
		{"member grant", strPtr("member-1"), nil, "member"},
		{"team grant", nil, strPtr("team-1"), "team"},
		{"both set is corrupt", strPtr("member-1"), strPtr("team-1"), ""},
		{"neither set is corrupt", nil, nil, ""},
		{"empty member string counts as unset", strPtr(""), strPtr("team-1"), "team"},
		{"empty team string counts as unset", strPtr("member-1"), strPtr(""), "member"},
		{"both empty strings is corrupt", strPtr(""), strPtr(""), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assignment{MemberID: tt.memberID, TeamID: tt.teamID}
			assert.Equal(t, tt.expected, a.Target())
		})
	}
}
