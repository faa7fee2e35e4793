package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Team groups members under a single owning admin for bulk session assignment.
type Team struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	AdminID   string    `json:"admin_id" gorm:"column:admin_id;index;type:text" validate:"required"`
	Name      string    `json:"name,omitempty" gorm:"type:text"`
	OrgID     string    `json:"org_id,omitempty" gorm:"column:org_id"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Team) TableName(namer schema.Namer) string {
	return namer.TableName("teams")
}

// TeamMember is one membership row. Unique per (team, principal).
type TeamMember struct {
	ID          int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	TeamID      string    `json:"team_id" gorm:"column:team_id;uniqueIndex:idx_team_members_team_principal;type:text" validate:"required"`
	PrincipalID string    `json:"principal_id" gorm:"column:principal_id;uniqueIndex:idx_team_members_team_principal;index;type:text" validate:"required"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (TeamMember) TableName(namer schema.Namer) string {
	return namer.TableName("team_members")
}
