package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

func testMessage() model.Message {
	return model.Message{
		MessageID:        "wamid-upsert-1",
		SessionID:        testSessionID,
		ContactID:        testContactID,
		Jid:              "628123456789@s.whatsapp.net",
		Flow:             model.MessageFlowIncoming,
		MessageType:      "text",
		MessageText:      "hello",
		Ack:              model.AckPending,
		OrgID:            testOrgID,
		MessageTimestamp: time.Now().Unix(),
		MessageObj:       datatypes.JSON(utils.MustMarshalJSON(map[string]interface{}{"text": "hello"})),
	}
}

func TestPostgresRepo_SaveMessage_Upsert(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()
	message := testMessage()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := repo.SaveMessage(ctx, message)
	assert.NoError(t, err)
}

func TestPostgresRepo_SaveMessage_TenantMismatch(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()
	message := testMessage()
	message.OrgID = "some-other-org"

	err := repo.SaveMessage(ctx, message)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPostgresRepo_SaveMessage_NoTenantInContext(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	err := repo.SaveMessage(context.Background(), testMessage())
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestPostgresRepo_FindMessageByExternalID_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	found, err := repo.FindMessageByExternalID(ctx, testSessionID, "wamid-missing")
	assert.Nil(t, found)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_AdvanceMessageAck(t *testing.T) {
	t.Run("advances from lower state", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		rows, err := repo.AdvanceMessageAck(ctx, testSessionID, "wamid-ack-1", model.AckRead)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), rows)
	})

	t.Run("stale ack touches nothing", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		// Row already at read; the WHERE guard filters it out.
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		rows, err := repo.AdvanceMessageAck(ctx, testSessionID, "wamid-ack-2", model.AckDelivered)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), rows)
	})

	t.Run("pending never advances", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		rows, err := repo.AdvanceMessageAck(ctx, testSessionID, "wamid-ack-3", model.AckPending)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), rows)
	})

	t.Run("unknown ack state rejected", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		_, err := repo.AdvanceMessageAck(ctx, testSessionID, "wamid-ack-4", "seen")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestPostgresRepo_BulkUpsertMessages(t *testing.T) {
	t.Run("empty batch is a no-op", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		err := repo.BulkUpsertMessages(contextWithTestOrg(), nil)
		assert.NoError(t, err)
	})

	t.Run("filters cross-tenant rows", func(t *testing.T) {
		repo, _, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		foreign := testMessage()
		foreign.OrgID = "someone-else"

		// Every message filtered out, so no SQL is issued.
		err := repo.BulkUpsertMessages(ctx, []model.Message{foreign})
		assert.NoError(t, err)
	})

	t.Run("upserts valid batch", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)
		ctx := contextWithTestOrg()

		first := testMessage()
		second := testMessage()
		second.MessageID = "wamid-upsert-2"

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
		mock.ExpectCommit()

		err := repo.BulkUpsertMessages(ctx, []model.Message{first, second})
		assert.NoError(t, err)
	})
}

func TestPostgresRepo_FindMessagesByContact(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()

	cols := []string{"id", "message_id", "session_id", "contact_id", "ack", "message_timestamp"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages"`)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, "wamid-2", testSessionID, testContactID, model.AckRead, 2000).
			AddRow(1, "wamid-1", testSessionID, testContactID, model.AckRead, 1000))

	messages, err := repo.FindMessagesByContact(ctx, testSessionID, testContactID, 50, 0)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "wamid-2", messages[0].MessageID)
}

func TestPostgresRepo_CountUnreadBySession(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT contact_id, COUNT(*) AS unread FROM "messages"`)).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id", "unread"}).
			AddRow(testContactID, 3).
			AddRow("contact-other", 1))

	unread, err := repo.CountUnreadBySession(ctx, testSessionID)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), unread[testContactID])
	assert.Equal(t, int64(1), unread["contact-other"])
}

func TestPostgresRepo_MarkContactRead(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestOrg()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	rows, err := repo.MarkContactRead(ctx, testSessionID, testContactID)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), rows)
}
