package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/access"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	gatewaymock "gitlab.com/chatdeck/api/wa-archive-engine/internal/gateway/mock"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	storagemock "gitlab.com/chatdeck/api/wa-archive-engine/internal/storage/mock"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

const (
	testOrg       = "org-test-123"
	testSession   = "session-1"
	testExternal  = "line-abc"
	testPrincipal = "principal-1"
	testJid       = "628111@s.whatsapp.net"
)

var mockCtx = mock.Anything

type authorizerMock struct {
	mock.Mock
}

func (m *authorizerMock) CanAccess(ctx context.Context, principalID, sessionID string, action access.Action) (bool, error) {
	args := m.Called(ctx, principalID, sessionID, action)
	return args.Bool(0), args.Error(1)
}

func (m *authorizerMock) Require(ctx context.Context, principalID, sessionID string, action access.Action) error {
	args := m.Called(ctx, principalID, sessionID, action)
	return args.Error(0)
}

type mediaWorkerMock struct {
	mock.Mock
}

func (m *mediaWorkerMock) SubmitTask(task MediaTaskData) error {
	args := m.Called(task)
	return args.Error(0)
}

func (m *mediaWorkerMock) Stop() {
	m.Called()
}

type serviceMocks struct {
	messages   *storagemock.MessageRepoMock
	contacts   *storagemock.ContactRepoMock
	sessions   *storagemock.SessionRepoMock
	directory  *storagemock.DirectoryRepoMock
	media      *storagemock.MediaRepoMock
	syncRuns   *storagemock.SyncRunRepoMock
	authorizer *authorizerMock
	gateway    *gatewaymock.ClientMock
	worker     *mediaWorkerMock
}

func newTestService() (*ArchiveService, *serviceMocks) {
	mocks := &serviceMocks{
		messages:   new(storagemock.MessageRepoMock),
		contacts:   new(storagemock.ContactRepoMock),
		sessions:   new(storagemock.SessionRepoMock),
		directory:  new(storagemock.DirectoryRepoMock),
		media:      new(storagemock.MediaRepoMock),
		syncRuns:   new(storagemock.SyncRunRepoMock),
		authorizer: new(authorizerMock),
		gateway:    new(gatewaymock.ClientMock),
		worker:     new(mediaWorkerMock),
	}
	service := NewArchiveService(
		mocks.messages,
		mocks.contacts,
		mocks.sessions,
		mocks.directory,
		mocks.media,
		mocks.syncRuns,
		mocks.authorizer,
		mocks.gateway,
		config.GatewayConfig{RetryMaxAttempts: 2},
		mocks.worker,
	)
	return service, mocks
}

func testCtx() context.Context {
	return tenant.WithOrgID(context.Background(), testOrg)
}

func testContact() *model.Contact {
	return &model.Contact{
		ID:        "contact-1",
		SessionID: testSession,
		Jid:       testJid,
		OrgID:     testOrg,
	}
}

func testSessionRow() *model.Session {
	return &model.Session{
		ID:            testSession,
		ExternalID:    testExternal,
		Status:        model.SessionStatusConnected,
		AdminID:       "admin-1",
		OrgID:         testOrg,
		LastMessageTS: 1000,
	}
}
