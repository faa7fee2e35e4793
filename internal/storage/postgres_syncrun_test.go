package storage

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

func testSyncRun() model.SyncRun {
	return model.SyncRun{
		ID:        "syncrun-1",
		SessionID: testSessionID,
		Kind:      model.SyncKindGapFill,
		FromTS:    1000,
		ToTS:      2000,
		Status:    model.SyncStatusStarted,
		OrgID:     testOrgID,
		StartedAt: utils.Now(),
	}
}

func TestPostgresRepo_CreateSyncRun(t *testing.T) {
	t.Run("inserts started run", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "sync_runs"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CreateSyncRun(ctx, testSyncRun())
		assert.NoError(t, err)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		run := testSyncRun()
		run.Kind = "full-rebuild"
		err := repo.CreateSyncRun(ctx, run)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestPostgresRepo_FinishSyncRun(t *testing.T) {
	t.Run("completes active run", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_runs" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.FinishSyncRun(ctx, "syncrun-1", model.SyncStatusCompleted, 120, "")
		assert.NoError(t, err)
	})

	t.Run("non-terminal status rejected", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		err := repo.FinishSyncRun(ctx, "syncrun-1", model.SyncStatusStarted, 0, "")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("already finished run reports not found", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_runs" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.FinishSyncRun(ctx, "syncrun-done", model.SyncStatusFailed, 10, "gateway timeout")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestPostgresRepo_FindActiveSyncRunBySession(t *testing.T) {
	t.Run("returns active run", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		cols := []string{"id", "session_id", "kind", "status", "org_id"}
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sync_runs"`)).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("syncrun-1", testSessionID, model.SyncKindInitial, model.SyncStatusStarted, testOrgID))

		run, err := repo.FindActiveSyncRunBySession(ctx, testSessionID)
		assert.NoError(t, err)
		assert.Equal(t, model.SyncStatusStarted, run.Status)
	})

	t.Run("no active run", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sync_runs"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		run, err := repo.FindActiveSyncRunBySession(ctx, testSessionID)
		assert.Nil(t, run)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
