package storage

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

func strPtr(s string) *string { return &s }

func TestPostgresRepo_SavePrincipal(t *testing.T) {
	t.Run("upserts member", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "principals"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SavePrincipal(ctx, model.Principal{
			ID:      "member-1",
			Role:    model.RoleMember,
			OwnerID: strPtr("admin-1"),
			Name:    "Agent One",
			OrgID:   testOrgID,
			Active:  true,
		})
		assert.NoError(t, err)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		err := repo.SavePrincipal(ctx, model.Principal{
			ID:    "member-2",
			Role:  "superuser",
			OrgID: testOrgID,
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestPostgresRepo_SaveAssignment(t *testing.T) {
	t.Run("member assignment", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "assignments"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveAssignment(ctx, model.Assignment{
			ID:         "assignment-1",
			SessionID:  testSessionID,
			MemberID:   strPtr("member-1"),
			AssignedBy: "admin-1",
		})
		assert.NoError(t, err)
	})

	t.Run("both targets set rejected", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		err := repo.SaveAssignment(ctx, model.Assignment{
			ID:        "assignment-2",
			SessionID: testSessionID,
			MemberID:  strPtr("member-1"),
			TeamID:    strPtr("team-1"),
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("no target rejected", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		err := repo.SaveAssignment(ctx, model.Assignment{
			ID:        "assignment-3",
			SessionID: testSessionID,
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestPostgresRepo_FindTeamIDsByMember(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "team_id" FROM "team_members"`)).
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).
			AddRow("team-1").
			AddRow("team-2"))

	teamIDs, err := repo.FindTeamIDsByMember(ctx, "member-1")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"team-1", "team-2"}, teamIDs)
}

func TestPostgresRepo_AddTeamMember_Idempotent(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()

	// ON CONFLICT DO NOTHING: a duplicate edge returns no id and still succeeds.
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "team_members"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := repo.AddTeamMember(ctx, model.TeamMember{TeamID: "team-1", PrincipalID: "member-1"})
	assert.NoError(t, err)
}
