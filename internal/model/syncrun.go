package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Sync run kinds.
const (
	SyncKindInitial = "initial"
	SyncKindGapFill = "gapfill"
	SyncKindManual  = "manual"
)

// Sync run statuses. A run is created as started and settles to exactly one of
// completed or failed; at most one non-terminal run exists per session.
const (
	SyncStatusStarted   = "started"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncRun is the bookkeeping record for one catch-up or import pass over a
// session's history window [FromTS, ToTS).
type SyncRun struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text"`
	SessionID   string     `json:"session_id" gorm:"column:session_id;index;type:text" validate:"required"`
	Kind        string     `json:"kind" gorm:"column:kind" validate:"required,oneof=initial gapfill manual"`
	FromTS      int64      `json:"from_ts" gorm:"column:from_ts"`
	ToTS        int64      `json:"to_ts" gorm:"column:to_ts"`
	Status      string     `json:"status" gorm:"column:status;index" validate:"required,oneof=started completed failed"`
	SyncedCount int64      `json:"synced_count" gorm:"column:synced_count"`
	ErrorDetail string     `json:"error_detail,omitempty" gorm:"column:error_detail;type:text"`
	OrgID       string     `json:"org_id,omitempty" gorm:"column:org_id"`
	StartedAt   time.Time  `json:"started_at,omitempty" gorm:"column:started_at;autoCreateTime"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" gorm:"column:finished_at"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (SyncRun) TableName(namer schema.Namer) string {
	return namer.TableName("sync_runs")
}

// Terminal reports whether the run has settled.
func (r *SyncRun) Terminal() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}

// ValidSyncKind reports whether k is a known sync kind.
func ValidSyncKind(k string) bool {
	switch k {
	case SyncKindInitial, SyncKindGapFill, SyncKindManual:
		return true
	}
	return false
}
