package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

func (m *MessageRepoMock) Save(ctx context.Context, message model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MessageRepoMock) FindByExternalID(ctx context.Context, sessionID, messageID string) (*model.Message, error) {
	args := m.Called(ctx, sessionID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) AdvanceAck(ctx context.Context, sessionID, messageID, newAck string) (int64, error) {
	args := m.Called(ctx, sessionID, messageID, newAck)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepoMock) BulkUpsert(ctx context.Context, messages []model.Message) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func (m *MessageRepoMock) FindByContact(ctx context.Context, sessionID, contactID string, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, sessionID, contactID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MessageRepoMock) LastBySession(ctx context.Context, sessionID string) (map[string]model.Message, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Message), args.Error(1)
}

func (m *MessageRepoMock) UnreadBySession(ctx context.Context, sessionID string) (map[string]int64, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MessageRepoMock) MarkContactRead(ctx context.Context, sessionID, contactID string) (int64, error) {
	args := m.Called(ctx, sessionID, contactID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

func (m *ContactRepoMock) Save(ctx context.Context, contact model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

func (m *ContactRepoMock) FindOrCreate(ctx context.Context, template model.Contact) (*model.Contact, error) {
	args := m.Called(ctx, template)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindByJid(ctx context.Context, sessionID, jid string) (*model.Contact, error) {
	args := m.Called(ctx, sessionID, jid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindBySession(ctx context.Context, sessionID string) ([]model.Contact, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- SessionRepo Mock ---

// SessionRepoMock mocks the SessionRepo interface
type SessionRepoMock struct {
	mock.Mock
}

func (m *SessionRepoMock) Save(ctx context.Context, session model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionRepoMock) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *SessionRepoMock) FindByExternalID(ctx context.Context, externalID string) (*model.Session, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *SessionRepoMock) FindByAdmin(ctx context.Context, adminID string) ([]model.Session, error) {
	args := m.Called(ctx, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *SessionRepoMock) List(ctx context.Context) ([]model.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *SessionRepoMock) UpdateStatus(ctx context.Context, sessionID, status string) error {
	args := m.Called(ctx, sessionID, status)
	return args.Error(0)
}

func (m *SessionRepoMock) AdvanceWatermark(ctx context.Context, sessionID string, ts int64) error {
	args := m.Called(ctx, sessionID, ts)
	return args.Error(0)
}

func (m *SessionRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- DirectoryRepo Mock ---

// DirectoryRepoMock mocks the DirectoryRepo interface
type DirectoryRepoMock struct {
	mock.Mock
}

func (m *DirectoryRepoMock) SavePrincipal(ctx context.Context, principal model.Principal) error {
	args := m.Called(ctx, principal)
	return args.Error(0)
}

func (m *DirectoryRepoMock) FindPrincipalByID(ctx context.Context, id string) (*model.Principal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Principal), args.Error(1)
}

func (m *DirectoryRepoMock) FindPrincipalsByOwner(ctx context.Context, ownerID string) ([]model.Principal, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Principal), args.Error(1)
}

func (m *DirectoryRepoMock) SaveTeam(ctx context.Context, team model.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *DirectoryRepoMock) FindTeamByID(ctx context.Context, id string) (*model.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Team), args.Error(1)
}

func (m *DirectoryRepoMock) FindTeamsByAdmin(ctx context.Context, adminID string) ([]model.Team, error) {
	args := m.Called(ctx, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Team), args.Error(1)
}

func (m *DirectoryRepoMock) FindTeamMemberIDs(ctx context.Context, teamID string) ([]string, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *DirectoryRepoMock) AddTeamMember(ctx context.Context, membership model.TeamMember) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *DirectoryRepoMock) RemoveTeamMember(ctx context.Context, teamID, principalID string) error {
	args := m.Called(ctx, teamID, principalID)
	return args.Error(0)
}

func (m *DirectoryRepoMock) FindTeamIDsByMember(ctx context.Context, principalID string) ([]string, error) {
	args := m.Called(ctx, principalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *DirectoryRepoMock) SaveAssignment(ctx context.Context, assignment model.Assignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *DirectoryRepoMock) DeleteAssignment(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DirectoryRepoMock) FindAssignmentsBySession(ctx context.Context, sessionID string) ([]model.Assignment, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Assignment), args.Error(1)
}

func (m *DirectoryRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MediaRepo Mock ---

// MediaRepoMock mocks the MediaRepo interface
type MediaRepoMock struct {
	mock.Mock
}

func (m *MediaRepoMock) Save(ctx context.Context, descriptor model.MediaDescriptor) error {
	args := m.Called(ctx, descriptor)
	return args.Error(0)
}

func (m *MediaRepoMock) FindByMessageID(ctx context.Context, messageID string) (*model.MediaDescriptor, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MediaDescriptor), args.Error(1)
}

func (m *MediaRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- SyncRunRepo Mock ---

// SyncRunRepoMock mocks the SyncRunRepo interface
type SyncRunRepoMock struct {
	mock.Mock
}

func (m *SyncRunRepoMock) Create(ctx context.Context, run model.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *SyncRunRepoMock) Finish(ctx context.Context, runID, status string, syncedCount int64, errorDetail string) error {
	args := m.Called(ctx, runID, status, syncedCount, errorDetail)
	return args.Error(0)
}

func (m *SyncRunRepoMock) FindActiveBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncRun), args.Error(1)
}

func (m *SyncRunRepoMock) FindLatestBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncRun), args.Error(1)
}

func (m *SyncRunRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
