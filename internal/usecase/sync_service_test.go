package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/access"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// waitForFinish arms the Finish expectation and returns a channel closed when
// the run settles.
func waitForFinish(mocks *serviceMocks, status string) chan struct{} {
	done := make(chan struct{})
	mocks.syncRuns.On("Finish", mockCtx, mock.AnythingOfType("string"), status, mock.AnythingOfType("int64"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { close(done) }).
		Return(nil).
		Once()
	return done
}

func awaitRun(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync run did not settle in time")
	}
}

func TestStartSync_GapFillCompletes(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)
	mocks.sessions.On("FindByID", mockCtx, testSession).Return(testSessionRow(), nil)
	mocks.syncRuns.On("FindActiveBySession", mockCtx, testSession).Return(nil, apperrors.ErrNotFound)
	mocks.syncRuns.On("Create", mockCtx, mock.MatchedBy(func(run model.SyncRun) bool {
		// Gap-fill resumes after the session watermark.
		return run.Kind == model.SyncKindGapFill && run.FromTS == 1000 && run.Status == model.SyncStatusStarted
	})).Return(nil)

	page1 := &model.HistoryPage{
		Messages: []model.MessageReceivedPayload{
			{MessageID: "h-1", Jid: testJid, MessageTimestamp: 1500},
			{MessageID: "h-2", Jid: testJid, MessageTimestamp: 1600},
		},
		NextCursor: "cursor-2",
	}
	page2 := &model.HistoryPage{
		Messages: []model.MessageReceivedPayload{
			{MessageID: "h-3", Jid: testJid, MessageTimestamp: 1700},
		},
	}
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, int64(1000), mock.AnythingOfType("int64"), "").Return(page1, nil)
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, int64(1000), mock.AnythingOfType("int64"), "cursor-2").Return(page2, nil)

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil)
	mocks.messages.On("BulkUpsert", mockCtx, mock.AnythingOfType("[]model.Message")).Return(nil)
	mocks.sessions.On("AdvanceWatermark", mockCtx, testSession, mock.AnythingOfType("int64")).Return(nil)

	done := waitForFinish(mocks, model.SyncStatusCompleted)

	run, err := service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindGapFill)

	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.SyncStatusStarted, run.Status)

	awaitRun(t, done)
	mocks.syncRuns.AssertExpectations(t)
	mocks.gateway.AssertExpectations(t)
}

func TestStartSync_WindowBoundsAreUnixSeconds(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)
	mocks.sessions.On("FindByID", mockCtx, testSession).Return(testSessionRow(), nil)
	mocks.syncRuns.On("FindActiveBySession", mockCtx, testSession).Return(nil, apperrors.ErrNotFound)
	mocks.syncRuns.On("Create", mockCtx, mock.AnythingOfType("model.SyncRun")).Return(nil)
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, int64(1000), mock.AnythingOfType("int64"), "").
		Return(&model.HistoryPage{}, nil)

	done := waitForFinish(mocks, model.SyncStatusCompleted)

	before := time.Now().Unix()
	run, err := service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindGapFill)
	after := time.Now().Unix()

	require.NoError(t, err)
	// The watermark lower bound is unix seconds, so the upper bound must be
	// too; a millisecond upper bound would be ~1000x the lower.
	assert.Equal(t, int64(1000), run.FromTS)
	assert.GreaterOrEqual(t, run.ToTS, before)
	assert.LessOrEqual(t, run.ToTS, after)

	awaitRun(t, done)
}

func TestStartSync_ConcurrentAttemptsSingleFlight(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)
	mocks.sessions.On("FindByID", mockCtx, testSession).Return(testSessionRow(), nil)
	mocks.syncRuns.On("FindActiveBySession", mockCtx, testSession).Return(nil, apperrors.ErrNotFound)
	mocks.syncRuns.On("Create", mockCtx, mock.AnythingOfType("model.SyncRun")).Return(nil)

	// Hold the first run open on its initial page fetch until both StartSync
	// calls have returned.
	release := make(chan struct{})
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, mock.AnythingOfType("int64"), mock.AnythingOfType("int64"), "").
		Run(func(args mock.Arguments) { <-release }).
		Return(&model.HistoryPage{}, nil)

	done := waitForFinish(mocks, model.SyncStatusCompleted)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindManual)
		}(i)
	}
	wg.Wait()
	close(release)

	var conflicts, successes int
	for _, err := range results {
		if err == nil {
			successes++
		} else if apperrors.IsConflictError(err) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one attempt should win")
	assert.Equal(t, 1, conflicts, "the loser should see an immediate conflict")

	awaitRun(t, done)
}

func TestStartSync_ActiveRunInDatabaseConflicts(t *testing.T) {
	service, mocks := newTestService()

	active := &model.SyncRun{ID: "run-prev", SessionID: testSession, Status: model.SyncStatusStarted}
	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)
	mocks.sessions.On("FindByID", mockCtx, testSession).Return(testSessionRow(), nil)
	mocks.syncRuns.On("FindActiveBySession", mockCtx, testSession).Return(active, nil)

	_, err := service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindManual)

	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
	mocks.syncRuns.AssertNotCalled(t, "Create", mockCtx, mockCtx)

	// The registry slot must be free again for the next attempt.
	assert.True(t, service.syncRuns.claim(testSession, func() {}))
	service.syncRuns.release(testSession)
}

func TestStartSync_PanicReleasesRegistrySlot(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)
	mocks.sessions.On("FindByID", mockCtx, testSession).Return(testSessionRow(), nil)
	mocks.syncRuns.On("FindActiveBySession", mockCtx, testSession).Return(nil, apperrors.ErrNotFound)
	mocks.syncRuns.On("Create", mockCtx, mock.AnythingOfType("model.SyncRun")).
		Run(func(args mock.Arguments) { panic("repo exploded") }).
		Return(nil)

	assert.Panics(t, func() {
		_, _ = service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindManual)
	})

	// A recovered caller must be able to sync the session again.
	assert.True(t, service.syncRuns.claim(testSession, func() {}))
	service.syncRuns.release(testSession)
}

func TestStartSync_UnknownKindRejected(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)

	_, err := service.StartSync(testCtx(), testPrincipal, testSession, "full-wipe")

	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestStartSync_DeniedPrincipal(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).
		Return(apperrors.ErrUnauthorized)

	_, err := service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindManual)

	require.Error(t, err)
	mocks.sessions.AssertNotCalled(t, "FindByID", mockCtx, mockCtx)
}

func TestRunSync_FailureKeepsPartialProgress(t *testing.T) {
	service, mocks := newTestService()

	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionSync).Return(nil)
	mocks.sessions.On("FindByID", mockCtx, testSession).Return(testSessionRow(), nil)
	mocks.syncRuns.On("FindActiveBySession", mockCtx, testSession).Return(nil, apperrors.ErrNotFound)
	mocks.syncRuns.On("Create", mockCtx, mock.AnythingOfType("model.SyncRun")).Return(nil)

	page1 := &model.HistoryPage{
		Messages: []model.MessageReceivedPayload{
			{MessageID: "h-1", Jid: testJid, MessageTimestamp: 1500},
			{MessageID: "h-2", Jid: testJid, MessageTimestamp: 1600},
		},
		NextCursor: "cursor-2",
	}
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, mock.AnythingOfType("int64"), mock.AnythingOfType("int64"), "").Return(page1, nil)
	// The second page dies permanently; the two ingested messages stay.
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, mock.AnythingOfType("int64"), mock.AnythingOfType("int64"), "cursor-2").
		Return(nil, apperrors.ErrBadRequest)

	mocks.contacts.On("FindOrCreate", mockCtx, mock.AnythingOfType("model.Contact")).Return(testContact(), nil)
	mocks.messages.On("BulkUpsert", mockCtx, mock.AnythingOfType("[]model.Message")).Return(nil)
	mocks.sessions.On("AdvanceWatermark", mockCtx, testSession, mock.AnythingOfType("int64")).Return(nil)

	done := make(chan struct{})
	mocks.syncRuns.On("Finish", mockCtx, mock.AnythingOfType("string"), model.SyncStatusFailed, int64(2), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { close(done) }).
		Return(nil).
		Once()

	_, err := service.StartSync(testCtx(), testPrincipal, testSession, model.SyncKindManual)
	require.NoError(t, err)

	awaitRun(t, done)
	mocks.syncRuns.AssertExpectations(t)
}

func TestFetchPage_RetriesTransientErrors(t *testing.T) {
	service, mocks := newTestService()

	page := &model.HistoryPage{Messages: []model.MessageReceivedPayload{{MessageID: "h-1", Jid: testJid}}}
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, int64(0), int64(0), "").
		Return(nil, apperrors.ErrGatewayTransient).Once()
	mocks.gateway.On("FetchHistory", mockCtx, testExternal, int64(0), int64(0), "").
		Return(page, nil).Once()

	result, err := service.fetchPage(testCtx(), testExternal, 0, 0, "")

	require.NoError(t, err)
	assert.Equal(t, page, result)
	mocks.gateway.AssertExpectations(t)
}

func TestFetchPage_PermanentErrorNotRetried(t *testing.T) {
	service, mocks := newTestService()

	mocks.gateway.On("FetchHistory", mockCtx, testExternal, int64(0), int64(0), "").
		Return(nil, apperrors.ErrBadRequest).Once()

	_, err := service.fetchPage(testCtx(), testExternal, 0, 0, "")

	require.Error(t, err)
	mocks.gateway.AssertNumberOfCalls(t, "FetchHistory", 1)
}

func TestGetSyncStatus_LatestRun(t *testing.T) {
	service, mocks := newTestService()

	latest := &model.SyncRun{ID: "run-9", SessionID: testSession, Status: model.SyncStatusCompleted}
	mocks.authorizer.On("Require", mockCtx, testPrincipal, testSession, access.ActionRead).Return(nil)
	mocks.syncRuns.On("FindLatestBySession", mockCtx, testSession).Return(latest, nil)

	run, err := service.GetSyncStatus(testCtx(), testPrincipal, testSession)

	require.NoError(t, err)
	assert.Equal(t, "run-9", run.ID)
}
