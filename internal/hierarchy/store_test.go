package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	storagemock "gitlab.com/chatdeck/api/wa-archive-engine/internal/storage/mock"
)

var mockCtx = mock.Anything

func strPtr(s string) *string { return &s }

func topAdmin() *model.Principal {
	return &model.Principal{ID: "top-1", Role: model.RoleTopAdmin, Active: true}
}

func admin() *model.Principal {
	return &model.Principal{ID: "admin-1", Role: model.RoleAdmin, OwnerID: strPtr("top-1"), Active: true}
}

func member() *model.Principal {
	return &model.Principal{ID: "member-1", Role: model.RoleMember, OwnerID: strPtr("admin-1"), Active: true}
}

func TestStore_Ancestors(t *testing.T) {
	t.Run("member walks to the top", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		directory.On("FindPrincipalByID", mockCtx, "member-1").Return(member(), nil)
		directory.On("FindPrincipalByID", mockCtx, "admin-1").Return(admin(), nil)
		directory.On("FindPrincipalByID", mockCtx, "top-1").Return(topAdmin(), nil)

		chain, err := NewStore(directory).Ancestors(context.Background(), "member-1")
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, "member-1", chain[0].ID)
		assert.Equal(t, "admin-1", chain[1].ID)
		assert.Equal(t, "top-1", chain[2].ID)
	})

	t.Run("top admin has no ancestors", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		directory.On("FindPrincipalByID", mockCtx, "top-1").Return(topAdmin(), nil)

		chain, err := NewStore(directory).Ancestors(context.Background(), "top-1")
		require.NoError(t, err)
		require.Len(t, chain, 1)
	})

	t.Run("self-referential owner edge is integrity error", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		selfOwned := &model.Principal{ID: "weird-1", Role: model.RoleAdmin, OwnerID: strPtr("weird-1")}
		directory.On("FindPrincipalByID", mockCtx, "weird-1").Return(selfOwned, nil)

		_, err := NewStore(directory).Ancestors(context.Background(), "weird-1")
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})

	t.Run("upward-pointing owner edge is integrity error", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		// A member owned by another member breaks the one-level-apart rule.
		badMember := &model.Principal{ID: "member-2", Role: model.RoleMember, OwnerID: strPtr("member-1")}
		directory.On("FindPrincipalByID", mockCtx, "member-2").Return(badMember, nil)
		directory.On("FindPrincipalByID", mockCtx, "member-1").Return(member(), nil)

		_, err := NewStore(directory).Ancestors(context.Background(), "member-2")
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})

	t.Run("missing principal propagates", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		directory.On("FindPrincipalByID", mockCtx, "ghost").Return(nil, apperrors.ErrNotFound)

		_, err := NewStore(directory).Ancestors(context.Background(), "ghost")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestStore_IsAncestor(t *testing.T) {
	directory := new(storagemock.DirectoryRepoMock)
	directory.On("FindPrincipalByID", mockCtx, "member-1").Return(member(), nil)
	directory.On("FindPrincipalByID", mockCtx, "admin-1").Return(admin(), nil)
	directory.On("FindPrincipalByID", mockCtx, "top-1").Return(topAdmin(), nil)
	store := NewStore(directory)

	yes, err := store.IsAncestor(context.Background(), "admin-1", "member-1")
	require.NoError(t, err)
	assert.True(t, yes)

	no, err := store.IsAncestor(context.Background(), "member-1", "member-1")
	require.NoError(t, err)
	assert.False(t, no)
}

func TestStore_Descendants(t *testing.T) {
	t.Run("admin reaches reports and team members", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		directory.On("FindPrincipalByID", mockCtx, "admin-1").Return(admin(), nil)
		directory.On("FindPrincipalsByOwner", mockCtx, "admin-1").Return([]model.Principal{*member()}, nil)
		directory.On("FindPrincipalsByOwner", mockCtx, "member-1").Return([]model.Principal{}, nil)
		directory.On("FindTeamsByAdmin", mockCtx, "admin-1").Return([]model.Team{{ID: "team-1", AdminID: "admin-1"}}, nil)
		directory.On("FindTeamMemberIDs", mockCtx, "team-1").Return([]string{"member-9"}, nil)
		teamMember := &model.Principal{ID: "member-9", Role: model.RoleMember, OwnerID: strPtr("admin-2"), Active: true}
		directory.On("FindPrincipalByID", mockCtx, "member-9").Return(teamMember, nil)

		out, err := NewStore(directory).Descendants(context.Background(), "admin-1")
		require.NoError(t, err)
		ids := make([]string, 0, len(out))
		for _, p := range out {
			ids = append(ids, p.ID)
		}
		assert.ElementsMatch(t, []string{"member-1", "member-9"}, ids)
	})

	t.Run("member has no descendants", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		directory.On("FindPrincipalByID", mockCtx, "member-1").Return(member(), nil)
		directory.On("FindPrincipalsByOwner", mockCtx, "member-1").Return([]model.Principal{}, nil)

		out, err := NewStore(directory).Descendants(context.Background(), "member-1")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("ownership cycle is integrity error", func(t *testing.T) {
		directory := new(storagemock.DirectoryRepoMock)
		directory.On("FindPrincipalByID", mockCtx, "admin-1").Return(admin(), nil)
		directory.On("FindPrincipalsByOwner", mockCtx, "admin-1").Return([]model.Principal{*member()}, nil)
		// member-1's report points back at admin-1
		directory.On("FindPrincipalsByOwner", mockCtx, "member-1").Return([]model.Principal{*admin()}, nil)

		_, err := NewStore(directory).Descendants(context.Background(), "admin-1")
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})
}
