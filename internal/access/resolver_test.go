package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/hierarchy"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	storagemock "gitlab.com/chatdeck/api/wa-archive-engine/internal/storage/mock"
)

var mockCtx = mock.Anything

func init() {
	logger.Log = zap.NewNop()
}

func strPtr(s string) *string { return &s }

type fixture struct {
	directory *storagemock.DirectoryRepoMock
	sessions  *storagemock.SessionRepoMock
	resolver  *Resolver
}

func newFixture() *fixture {
	directory := new(storagemock.DirectoryRepoMock)
	sessions := new(storagemock.SessionRepoMock)
	return &fixture{
		directory: directory,
		sessions:  sessions,
		resolver:  NewResolver(directory, sessions, hierarchy.NewStore(directory)),
	}
}

func (f *fixture) withPrincipal(p *model.Principal) *fixture {
	f.directory.On("FindPrincipalByID", mockCtx, p.ID).Return(p, nil)
	return f
}

func (f *fixture) withSession(s *model.Session) *fixture {
	f.sessions.On("FindByID", mockCtx, s.ID).Return(s, nil)
	return f
}

func topAdmin() *model.Principal {
	return &model.Principal{ID: "top-1", Role: model.RoleTopAdmin, Active: true}
}

func adminA() *model.Principal {
	return &model.Principal{ID: "admin-a", Role: model.RoleAdmin, OwnerID: strPtr("top-1"), Active: true}
}

func memberM() *model.Principal {
	return &model.Principal{ID: "member-m", Role: model.RoleMember, OwnerID: strPtr("admin-a"), Active: true}
}

func sessionOwnedBy(adminID string) *model.Session {
	return &model.Session{ID: "session-1", ExternalID: "wa-line-1", AdminID: adminID, Status: model.SessionStatusConnected}
}

func TestResolver_TopAdminAlwaysAllowed(t *testing.T) {
	f := newFixture().withPrincipal(topAdmin())

	allowed, err := f.resolver.CanAccess(context.Background(), "top-1", "session-1", ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
	// Session is never even loaded for top_admin.
	f.sessions.AssertNotCalled(t, "FindByID", mockCtx, "session-1")
}

func TestResolver_OwningAdminAllowed(t *testing.T) {
	f := newFixture().
		withPrincipal(adminA()).
		withSession(sessionOwnedBy("admin-a"))

	allowed, err := f.resolver.CanAccess(context.Background(), "admin-a", "session-1", ActionSend)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestResolver_SiblingAdminDenied(t *testing.T) {
	adminB := &model.Principal{ID: "admin-b", Role: model.RoleAdmin, OwnerID: strPtr("top-1"), Active: true}
	f := newFixture().
		withPrincipal(adminB).
		withPrincipal(adminA()).
		withPrincipal(topAdmin()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{}, nil)

	allowed, err := f.resolver.CanAccess(context.Background(), "admin-b", "session-1", ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolver_DirectAssignmentAllowed(t *testing.T) {
	f := newFixture().
		withPrincipal(memberM()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{
		{ID: "assignment-1", SessionID: "session-1", MemberID: strPtr("member-m"), AssignedBy: "admin-a"},
	}, nil)

	allowed, err := f.resolver.CanAccess(context.Background(), "member-m", "session-1", ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestResolver_TeamAssignmentAllowed(t *testing.T) {
	f := newFixture().
		withPrincipal(memberM()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{
		{ID: "assignment-1", SessionID: "session-1", TeamID: strPtr("team-t"), AssignedBy: "admin-a"},
	}, nil)
	f.directory.On("FindTeamIDsByMember", mockCtx, "member-m").Return([]string{"team-t"}, nil)

	allowed, err := f.resolver.CanAccess(context.Background(), "member-m", "session-1", ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
}

// Admin A creates member M in team T assigned to S1, and sibling member M2
// with a direct grant on S2. M sees S1 through the team but not S2.
func TestResolver_TeamAndDirectScenario(t *testing.T) {
	s1 := &model.Session{ID: "session-s1", AdminID: "admin-a", Status: model.SessionStatusConnected}
	s2 := &model.Session{ID: "session-s2", AdminID: "admin-a", Status: model.SessionStatusConnected}

	f := newFixture().
		withPrincipal(memberM()).
		withSession(s1).
		withSession(s2)
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-s1").Return([]model.Assignment{
		{ID: "assignment-t", SessionID: "session-s1", TeamID: strPtr("team-t"), AssignedBy: "admin-a"},
	}, nil)
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-s2").Return([]model.Assignment{
		{ID: "assignment-m2", SessionID: "session-s2", MemberID: strPtr("member-m2"), AssignedBy: "admin-a"},
	}, nil)
	f.directory.On("FindTeamIDsByMember", mockCtx, "member-m").Return([]string{"team-t"}, nil)

	onS1, err := f.resolver.CanAccess(context.Background(), "member-m", "session-s1", ActionRead)
	require.NoError(t, err)
	assert.True(t, onS1)

	onS2, err := f.resolver.CanAccess(context.Background(), "member-m", "session-s2", ActionRead)
	require.NoError(t, err)
	assert.False(t, onS2)
}

func TestResolver_UnassignedMemberDenied(t *testing.T) {
	f := newFixture().
		withPrincipal(memberM()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{}, nil)

	allowed, err := f.resolver.CanAccess(context.Background(), "member-m", "session-1", ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolver_InactivePrincipalDenied(t *testing.T) {
	inactive := memberM()
	inactive.Active = false
	f := newFixture().withPrincipal(inactive)

	allowed, err := f.resolver.CanAccess(context.Background(), "member-m", "session-1", ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolver_CorruptAssignmentIsIntegrityError(t *testing.T) {
	f := newFixture().
		withPrincipal(memberM()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{
		{ID: "assignment-bad", SessionID: "session-1", MemberID: strPtr("member-m"), TeamID: strPtr("team-t")},
	}, nil)

	_, err := f.resolver.CanAccess(context.Background(), "member-m", "session-1", ActionRead)
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestResolver_DecisionsAreDeterministic(t *testing.T) {
	f := newFixture().
		withPrincipal(memberM()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{
		{ID: "assignment-1", SessionID: "session-1", MemberID: strPtr("member-m"), AssignedBy: "admin-a"},
	}, nil)

	for i := 0; i < 5; i++ {
		allowed, err := f.resolver.CanAccess(context.Background(), "member-m", "session-1", ActionRead)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestResolver_Require(t *testing.T) {
	f := newFixture().
		withPrincipal(memberM()).
		withSession(sessionOwnedBy("admin-a"))
	f.directory.On("FindAssignmentsBySession", mockCtx, "session-1").Return([]model.Assignment{}, nil)

	err := f.resolver.Require(context.Background(), "member-m", "session-1", ActionRead)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
