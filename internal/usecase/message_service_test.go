package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

func receivedPayload() model.MessageReceivedPayload {
	return model.MessageReceivedPayload{
		SessionID:        testSession,
		MessageID:        "wamid-1",
		Jid:              testJid,
		Flow:             model.MessageFlowIncoming,
		MessageType:      "text",
		MessageText:      "hello",
		Ack:              model.AckPending,
		MessageTimestamp: 1700000000000,
		OrgID:            testOrg,
	}
}

func TestUpsertMessage_NewMessage(t *testing.T) {
	service, mocks := newTestService()
	payload := receivedPayload()

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil)
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(nil, apperrors.ErrNotFound)
	mocks.messages.On("Save", mockCtx, mock.MatchedBy(func(msg model.Message) bool {
		return msg.ContactID == "contact-1" && msg.MessageID == "wamid-1" && msg.OrgID == testOrg
	})).Return(nil)
	mocks.sessions.On("AdvanceWatermark", mockCtx, testSession, int64(1700000000000)).Return(nil)

	err := service.UpsertMessage(testCtx(), payload, nil)

	require.NoError(t, err)
	mocks.messages.AssertExpectations(t)
	mocks.sessions.AssertExpectations(t)
	// Pending acks never trigger an advance attempt.
	mocks.messages.AssertNotCalled(t, "AdvanceAck", mockCtx, mockCtx, mockCtx, mockCtx)
	mocks.worker.AssertNotCalled(t, "SubmitTask", mockCtx)
}

func TestUpsertMessage_DuplicateDeliveryIsIdempotent(t *testing.T) {
	service, mocks := newTestService()
	payload := receivedPayload()
	payload.Ack = model.AckDelivered

	existing := &model.Message{
		ID:        42,
		SessionID: testSession,
		MessageID: "wamid-1",
		ContactID: "contact-1",
		Ack:       model.AckSent,
		OrgID:     testOrg,
	}

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil)
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(existing, nil)
	mocks.messages.On("AdvanceAck", mockCtx, testSession, "wamid-1", model.AckDelivered).Return(int64(1), nil)
	mocks.sessions.On("AdvanceWatermark", mockCtx, testSession, int64(1700000000000)).Return(nil)

	err := service.UpsertMessage(testCtx(), payload, nil)

	require.NoError(t, err)
	// The stored row is never rewritten on duplicate delivery; only the ack
	// may still advance.
	mocks.messages.AssertNotCalled(t, "Save", mockCtx, mockCtx)
	mocks.messages.AssertExpectations(t)
}

func TestUpsertMessage_MediaTaskSubmitted(t *testing.T) {
	service, mocks := newTestService()
	payload := receivedPayload()
	payload.HasMedia = true
	payload.MediaURL = "https://cdn.example.com/media/abc.jpg"

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil)
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(nil, apperrors.ErrNotFound)
	mocks.messages.On("Save", mockCtx, mock.AnythingOfType("model.Message")).Return(nil)
	mocks.sessions.On("AdvanceWatermark", mockCtx, testSession, int64(1700000000000)).Return(nil)
	mocks.worker.On("SubmitTask", mock.MatchedBy(func(task MediaTaskData) bool {
		return task.Message.MessageID == "wamid-1" && task.MediaURL == payload.MediaURL
	})).Return(nil)

	err := service.UpsertMessage(testCtx(), payload, nil)

	require.NoError(t, err)
	mocks.worker.AssertExpectations(t)
}

func TestUpsertMessage_ValidationFailureIsFatal(t *testing.T) {
	service, mocks := newTestService()
	payload := receivedPayload()
	payload.MessageID = ""

	err := service.UpsertMessage(testCtx(), payload, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	mocks.contacts.AssertNotCalled(t, "FindOrCreate", mockCtx, mockCtx)
}

func TestUpsertMessage_MissingTenantIsFatal(t *testing.T) {
	service, _ := newTestService()

	err := service.UpsertMessage(context.Background(), receivedPayload(), nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestUpsertMessage_OrgMismatchIsFatal(t *testing.T) {
	service, _ := newTestService()
	payload := receivedPayload()
	payload.OrgID = "some-other-org"

	err := service.UpsertMessage(testCtx(), payload, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
}

func TestUpsertMessage_DatabaseErrorIsRetryable(t *testing.T) {
	service, mocks := newTestService()

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil)
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(nil, apperrors.ErrNotFound)
	mocks.messages.On("Save", mockCtx, mock.AnythingOfType("model.Message")).Return(apperrors.ErrDatabase)

	err := service.UpsertMessage(testCtx(), receivedPayload(), nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func ackPayload(ack string) model.AckUpdatePayload {
	return model.AckUpdatePayload{
		SessionID: testSession,
		MessageID: "wamid-1",
		Ack:       ack,
		OrgID:     testOrg,
	}
}

func TestApplyAck_Advances(t *testing.T) {
	service, mocks := newTestService()

	mocks.messages.On("AdvanceAck", mockCtx, testSession, "wamid-1", model.AckRead).Return(int64(1), nil)

	err := service.ApplyAck(testCtx(), ackPayload(model.AckRead), nil)

	require.NoError(t, err)
	mocks.messages.AssertExpectations(t)
}

func TestApplyAck_RegressionDiscarded(t *testing.T) {
	service, mocks := newTestService()

	existing := &model.Message{SessionID: testSession, MessageID: "wamid-1", Ack: model.AckRead, OrgID: testOrg}
	mocks.messages.On("AdvanceAck", mockCtx, testSession, "wamid-1", model.AckSent).Return(int64(0), nil)
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(existing, nil)

	err := service.ApplyAck(testCtx(), ackPayload(model.AckSent), nil)

	// Out-of-order acks are expected noise, never an error.
	require.NoError(t, err)
}

func TestApplyAck_UnknownMessageIsRetryable(t *testing.T) {
	service, mocks := newTestService()

	mocks.messages.On("AdvanceAck", mockCtx, testSession, "wamid-1", model.AckDelivered).Return(int64(0), nil)
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(nil, apperrors.ErrNotFound)

	err := service.ApplyAck(testCtx(), ackPayload(model.AckDelivered), nil)

	// The ack raced ahead of its message; redelivery should land later.
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestApplyAck_MaxAckWinsUnderReordering(t *testing.T) {
	service, mocks := newTestService()

	// played lands first and sticks; the late delivered is a no-op.
	mocks.messages.On("AdvanceAck", mockCtx, testSession, "wamid-1", model.AckPlayed).Return(int64(1), nil).Once()
	mocks.messages.On("AdvanceAck", mockCtx, testSession, "wamid-1", model.AckDelivered).Return(int64(0), nil).Once()
	existing := &model.Message{SessionID: testSession, MessageID: "wamid-1", Ack: model.AckPlayed, OrgID: testOrg}
	mocks.messages.On("FindByExternalID", mockCtx, testSession, "wamid-1").Return(existing, nil)

	require.NoError(t, service.ApplyAck(testCtx(), ackPayload(model.AckPlayed), nil))
	require.NoError(t, service.ApplyAck(testCtx(), ackPayload(model.AckDelivered), nil))
	mocks.messages.AssertExpectations(t)
}

func TestBulkIngestMessages_ResolvesContactsOncePerJid(t *testing.T) {
	service, mocks := newTestService()

	page := []model.MessageReceivedPayload{
		{MessageID: "h-1", Jid: testJid, MessageTimestamp: 100},
		{MessageID: "h-2", Jid: testJid, MessageTimestamp: 300},
		{MessageID: "h-3", Jid: testJid, MessageTimestamp: 200},
	}

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil).Once()
	mocks.messages.On("BulkUpsert", mockCtx, mock.MatchedBy(func(messages []model.Message) bool {
		return len(messages) == 3 && messages[0].ContactID == "contact-1"
	})).Return(nil)
	mocks.sessions.On("AdvanceWatermark", mockCtx, testSession, int64(300)).Return(nil)

	count, err := service.BulkIngestMessages(testCtx(), testSession, page, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	mocks.contacts.AssertExpectations(t)
	mocks.sessions.AssertExpectations(t)
}

func TestBulkIngestMessages_SkipsMalformedEntries(t *testing.T) {
	service, mocks := newTestService()

	page := []model.MessageReceivedPayload{
		{MessageID: "", Jid: testJid, MessageTimestamp: 100},
		{MessageID: "h-2", Jid: "", MessageTimestamp: 200},
	}

	count, err := service.BulkIngestMessages(testCtx(), testSession, page, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	mocks.messages.AssertNotCalled(t, "BulkUpsert", mockCtx, mockCtx)
}

func TestBulkIngestMessages_EmptyPage(t *testing.T) {
	service, _ := newTestService()

	count, err := service.BulkIngestMessages(testCtx(), testSession, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
