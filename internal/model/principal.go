package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Principal roles, strictly ordered top to bottom. A principal's owner is always
// exactly one level above it; only a top admin has no owner.
const (
	RoleTopAdmin = "top_admin"
	RoleAdmin    = "admin"
	RoleMember   = "member"
)

// Principal is one node of the three-level ownership hierarchy.
type Principal struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Role      string    `json:"role" gorm:"column:role;type:text" validate:"required,oneof=top_admin admin member"`
	OwnerID   *string   `json:"owner_id,omitempty" gorm:"column:owner_id;index;type:text"`
	Name      string    `json:"name,omitempty" gorm:"type:text"`
	OrgID     string    `json:"org_id,omitempty" gorm:"column:org_id"`
	Active    bool      `json:"active" gorm:"column:active;default:true"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Principal) TableName(namer schema.Namer) string {
	return namer.TableName("principals")
}

// RoleRank returns the hierarchy depth of a role: 0 for top_admin, 1 for admin,
// 2 for member, -1 for anything unknown.
func RoleRank(role string) int {
	switch role {
	case RoleTopAdmin:
		return 0
	case RoleAdmin:
		return 1
	case RoleMember:
		return 2
	default:
		return -1
	}
}

// IsAdminRole reports whether the role may own sessions and teams.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleTopAdmin
}
