package storage

import (
	"context"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// MessageRepo defines message storage operations
type MessageRepo interface {
	Save(ctx context.Context, message model.Message) error
	FindByExternalID(ctx context.Context, sessionID, messageID string) (*model.Message, error)
	AdvanceAck(ctx context.Context, sessionID, messageID, newAck string) (int64, error)
	BulkUpsert(ctx context.Context, messages []model.Message) error

	FindByContact(ctx context.Context, sessionID, contactID string, limit, offset int) ([]model.Message, error)
	LastBySession(ctx context.Context, sessionID string) (map[string]model.Message, error)
	UnreadBySession(ctx context.Context, sessionID string) (map[string]int64, error)
	MarkContactRead(ctx context.Context, sessionID, contactID string) (int64, error)

	Close(ctx context.Context) error
}

// ContactRepo defines contact storage operations
type ContactRepo interface {
	Save(ctx context.Context, contact model.Contact) error
	FindOrCreate(ctx context.Context, template model.Contact) (*model.Contact, error)
	FindByJid(ctx context.Context, sessionID, jid string) (*model.Contact, error)
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindBySession(ctx context.Context, sessionID string) ([]model.Contact, error)
	Close(ctx context.Context) error
}

// SessionRepo defines session storage operations
type SessionRepo interface {
	Save(ctx context.Context, session model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.Session, error)
	FindByAdmin(ctx context.Context, adminID string) ([]model.Session, error)
	List(ctx context.Context) ([]model.Session, error)
	UpdateStatus(ctx context.Context, sessionID, status string) error
	AdvanceWatermark(ctx context.Context, sessionID string, ts int64) error
	Close(ctx context.Context) error
}

// DirectoryRepo defines principal, team, and assignment storage operations
type DirectoryRepo interface {
	SavePrincipal(ctx context.Context, principal model.Principal) error
	FindPrincipalByID(ctx context.Context, id string) (*model.Principal, error)
	FindPrincipalsByOwner(ctx context.Context, ownerID string) ([]model.Principal, error)

	SaveTeam(ctx context.Context, team model.Team) error
	FindTeamByID(ctx context.Context, id string) (*model.Team, error)
	FindTeamsByAdmin(ctx context.Context, adminID string) ([]model.Team, error)
	AddTeamMember(ctx context.Context, membership model.TeamMember) error
	RemoveTeamMember(ctx context.Context, teamID, principalID string) error
	FindTeamIDsByMember(ctx context.Context, principalID string) ([]string, error)
	FindTeamMemberIDs(ctx context.Context, teamID string) ([]string, error)

	SaveAssignment(ctx context.Context, assignment model.Assignment) error
	DeleteAssignment(ctx context.Context, id string) error
	FindAssignmentsBySession(ctx context.Context, sessionID string) ([]model.Assignment, error)

	Close(ctx context.Context) error
}

// MediaRepo defines media descriptor storage operations
type MediaRepo interface {
	Save(ctx context.Context, descriptor model.MediaDescriptor) error
	FindByMessageID(ctx context.Context, messageID string) (*model.MediaDescriptor, error)
	Close(ctx context.Context) error
}

// SyncRunRepo defines sync run bookkeeping operations
type SyncRunRepo interface {
	Create(ctx context.Context, run model.SyncRun) error
	Finish(ctx context.Context, runID, status string, syncedCount int64, errorDetail string) error
	FindActiveBySession(ctx context.Context, sessionID string) (*model.SyncRun, error)
	FindLatestBySession(ctx context.Context, sessionID string) (*model.SyncRun, error)
	Close(ctx context.Context) error
}
