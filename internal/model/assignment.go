package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Assignment grants read/act access on a session to exactly one of a member or a
// team. Multiple assignments per session are allowed; access is the union of the
// grants. A row naming both or neither target is corrupt and must surface as an
// integrity error, never as an implicit grant.
type Assignment struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text"`
	SessionID  string    `json:"session_id" gorm:"column:session_id;index;type:text" validate:"required"`
	MemberID   *string   `json:"member_id,omitempty" gorm:"column:member_id;index;type:text"`
	TeamID     *string   `json:"team_id,omitempty" gorm:"column:team_id;index;type:text"`
	AssignedBy string    `json:"assigned_by" gorm:"column:assigned_by;type:text" validate:"required"`
	CreatedAt  time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Assignment) TableName(namer schema.Namer) string {
	return namer.TableName("assignments")
}

// Target returns which kind of grant this row carries: "member", "team", or ""
// when the row is corrupt (both or neither set).
func (a *Assignment) Target() string {
	hasMember := a.MemberID != nil && *a.MemberID != ""
	hasTeam := a.TeamID != nil && *a.TeamID != ""
	switch {
	case hasMember && !hasTeam:
		return "member"
	case hasTeam && !hasMember:
		return "team"
	default:
		return ""
	}
}
