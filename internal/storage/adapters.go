package storage

import (
	"context"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

func (a *MessageRepoAdapter) Save(ctx context.Context, message model.Message) error {
	return a.postgres.SaveMessage(ctx, message)
}

func (a *MessageRepoAdapter) FindByExternalID(ctx context.Context, sessionID, messageID string) (*model.Message, error) {
	return a.postgres.FindMessageByExternalID(ctx, sessionID, messageID)
}

func (a *MessageRepoAdapter) AdvanceAck(ctx context.Context, sessionID, messageID, newAck string) (int64, error) {
	return a.postgres.AdvanceMessageAck(ctx, sessionID, messageID, newAck)
}

func (a *MessageRepoAdapter) BulkUpsert(ctx context.Context, messages []model.Message) error {
	return a.postgres.BulkUpsertMessages(ctx, messages)
}

func (a *MessageRepoAdapter) FindByContact(ctx context.Context, sessionID, contactID string, limit, offset int) ([]model.Message, error) {
	return a.postgres.FindMessagesByContact(ctx, sessionID, contactID, limit, offset)
}

func (a *MessageRepoAdapter) LastBySession(ctx context.Context, sessionID string) (map[string]model.Message, error) {
	return a.postgres.FindLastMessagesBySession(ctx, sessionID)
}

func (a *MessageRepoAdapter) UnreadBySession(ctx context.Context, sessionID string) (map[string]int64, error) {
	return a.postgres.CountUnreadBySession(ctx, sessionID)
}

func (a *MessageRepoAdapter) MarkContactRead(ctx context.Context, sessionID, contactID string) (int64, error) {
	return a.postgres.MarkContactRead(ctx, sessionID, contactID)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

func (a *ContactRepoAdapter) Save(ctx context.Context, contact model.Contact) error {
	return a.postgres.SaveContact(ctx, contact)
}

func (a *ContactRepoAdapter) FindOrCreate(ctx context.Context, template model.Contact) (*model.Contact, error) {
	return a.postgres.FindOrCreateContactByJid(ctx, template)
}

func (a *ContactRepoAdapter) FindByJid(ctx context.Context, sessionID, jid string) (*model.Contact, error) {
	return a.postgres.FindContactByJid(ctx, sessionID, jid)
}

func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

func (a *ContactRepoAdapter) FindBySession(ctx context.Context, sessionID string) ([]model.Contact, error) {
	return a.postgres.FindContactsBySession(ctx, sessionID)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// SessionRepoAdapter adapts the PostgresRepo to the SessionRepo interface
type SessionRepoAdapter struct {
	postgres *PostgresRepo
}

// NewSessionRepoAdapter creates a new session repository adapter
func NewSessionRepoAdapter(postgres *PostgresRepo) SessionRepo {
	return &SessionRepoAdapter{postgres: postgres}
}

func (a *SessionRepoAdapter) Save(ctx context.Context, session model.Session) error {
	return a.postgres.SaveSession(ctx, session)
}

func (a *SessionRepoAdapter) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return a.postgres.FindSessionByID(ctx, id)
}

func (a *SessionRepoAdapter) FindByExternalID(ctx context.Context, externalID string) (*model.Session, error) {
	return a.postgres.FindSessionByExternalID(ctx, externalID)
}

func (a *SessionRepoAdapter) FindByAdmin(ctx context.Context, adminID string) ([]model.Session, error) {
	return a.postgres.FindSessionsByAdmin(ctx, adminID)
}

func (a *SessionRepoAdapter) List(ctx context.Context) ([]model.Session, error) {
	return a.postgres.ListSessions(ctx)
}

func (a *SessionRepoAdapter) UpdateStatus(ctx context.Context, sessionID, status string) error {
	return a.postgres.UpdateSessionStatus(ctx, sessionID, status)
}

func (a *SessionRepoAdapter) AdvanceWatermark(ctx context.Context, sessionID string, ts int64) error {
	return a.postgres.AdvanceSessionWatermark(ctx, sessionID, ts)
}

func (a *SessionRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// DirectoryRepoAdapter adapts the PostgresRepo to the DirectoryRepo interface
type DirectoryRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDirectoryRepoAdapter creates a new directory repository adapter
func NewDirectoryRepoAdapter(postgres *PostgresRepo) DirectoryRepo {
	return &DirectoryRepoAdapter{postgres: postgres}
}

func (a *DirectoryRepoAdapter) SavePrincipal(ctx context.Context, principal model.Principal) error {
	return a.postgres.SavePrincipal(ctx, principal)
}

func (a *DirectoryRepoAdapter) FindPrincipalByID(ctx context.Context, id string) (*model.Principal, error) {
	return a.postgres.FindPrincipalByID(ctx, id)
}

func (a *DirectoryRepoAdapter) FindPrincipalsByOwner(ctx context.Context, ownerID string) ([]model.Principal, error) {
	return a.postgres.FindPrincipalsByOwner(ctx, ownerID)
}

func (a *DirectoryRepoAdapter) SaveTeam(ctx context.Context, team model.Team) error {
	return a.postgres.SaveTeam(ctx, team)
}

func (a *DirectoryRepoAdapter) FindTeamByID(ctx context.Context, id string) (*model.Team, error) {
	return a.postgres.FindTeamByID(ctx, id)
}

func (a *DirectoryRepoAdapter) FindTeamsByAdmin(ctx context.Context, adminID string) ([]model.Team, error) {
	return a.postgres.FindTeamsByAdmin(ctx, adminID)
}

func (a *DirectoryRepoAdapter) FindTeamMemberIDs(ctx context.Context, teamID string) ([]string, error) {
	return a.postgres.FindTeamMemberIDs(ctx, teamID)
}

func (a *DirectoryRepoAdapter) AddTeamMember(ctx context.Context, membership model.TeamMember) error {
	return a.postgres.AddTeamMember(ctx, membership)
}

func (a *DirectoryRepoAdapter) RemoveTeamMember(ctx context.Context, teamID, principalID string) error {
	return a.postgres.RemoveTeamMember(ctx, teamID, principalID)
}

func (a *DirectoryRepoAdapter) FindTeamIDsByMember(ctx context.Context, principalID string) ([]string, error) {
	return a.postgres.FindTeamIDsByMember(ctx, principalID)
}

func (a *DirectoryRepoAdapter) SaveAssignment(ctx context.Context, assignment model.Assignment) error {
	return a.postgres.SaveAssignment(ctx, assignment)
}

func (a *DirectoryRepoAdapter) DeleteAssignment(ctx context.Context, id string) error {
	return a.postgres.DeleteAssignment(ctx, id)
}

func (a *DirectoryRepoAdapter) FindAssignmentsBySession(ctx context.Context, sessionID string) ([]model.Assignment, error) {
	return a.postgres.FindAssignmentsBySession(ctx, sessionID)
}

func (a *DirectoryRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// MediaRepoAdapter adapts the PostgresRepo to the MediaRepo interface
type MediaRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMediaRepoAdapter creates a new media repository adapter
func NewMediaRepoAdapter(postgres *PostgresRepo) MediaRepo {
	return &MediaRepoAdapter{postgres: postgres}
}

func (a *MediaRepoAdapter) Save(ctx context.Context, descriptor model.MediaDescriptor) error {
	return a.postgres.SaveMediaDescriptor(ctx, descriptor)
}

func (a *MediaRepoAdapter) FindByMessageID(ctx context.Context, messageID string) (*model.MediaDescriptor, error) {
	return a.postgres.FindMediaDescriptorByMessage(ctx, messageID)
}

func (a *MediaRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// SyncRunRepoAdapter adapts the PostgresRepo to the SyncRunRepo interface
type SyncRunRepoAdapter struct {
	postgres *PostgresRepo
}

// NewSyncRunRepoAdapter creates a new sync run repository adapter
func NewSyncRunRepoAdapter(postgres *PostgresRepo) SyncRunRepo {
	return &SyncRunRepoAdapter{postgres: postgres}
}

func (a *SyncRunRepoAdapter) Create(ctx context.Context, run model.SyncRun) error {
	return a.postgres.CreateSyncRun(ctx, run)
}

func (a *SyncRunRepoAdapter) Finish(ctx context.Context, runID, status string, syncedCount int64, errorDetail string) error {
	return a.postgres.FinishSyncRun(ctx, runID, status, syncedCount, errorDetail)
}

func (a *SyncRunRepoAdapter) FindActiveBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	return a.postgres.FindActiveSyncRunBySession(ctx, sessionID)
}

func (a *SyncRunRepoAdapter) FindLatestBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	return a.postgres.FindLatestSyncRunBySession(ctx, sessionID)
}

func (a *SyncRunRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ ContactRepo = (*ContactRepoAdapter)(nil)
var _ SessionRepo = (*SessionRepoAdapter)(nil)
var _ DirectoryRepo = (*DirectoryRepoAdapter)(nil)
var _ MediaRepo = (*MediaRepoAdapter)(nil)
var _ SyncRunRepo = (*SyncRunRepoAdapter)(nil)
