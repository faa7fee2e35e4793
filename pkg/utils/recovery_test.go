package utils

import (
	"errors"
	"sync"
	"testing"

	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"go.uber.org/zap/zaptest"
)

func withTestLogger(t *testing.T) func() {
	original := logger.Log
	logger.Log = zaptest.NewLogger(t)
	return func() { logger.Log = original }
}

func TestSafeGo_RunsFunction(t *testing.T) {
	defer withTestLogger(t)()

	done := make(chan struct{})
	SafeGo(func() { close(done) }, nil)
	<-done
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	defer withTestLogger(t)()

	var wg sync.WaitGroup
	wg.Add(1)
	var recovered interface{}

	SafeGo(func() {
		defer wg.Done()
		panic("boom")
	}, func(r interface{}, stack []byte) {
		recovered = r
	})

	wg.Wait()
	if recovered != "boom" {
		t.Errorf("expected recovered panic 'boom', got %v", recovered)
	}
}

func TestWrapWithRecovery(t *testing.T) {
	defer withTestLogger(t)()

	if err := WrapWithRecovery(func() error { return nil })(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}

	wantErr := errors.New("plain failure")
	if err := WrapWithRecovery(func() error { return wantErr })(); !errors.Is(err, wantErr) {
		t.Errorf("expected plain failure passthrough, got %v", err)
	}

	err := WrapWithRecovery(func() error { panic("boom") })()
	if err == nil || err.Error() != "panic recovered: boom" {
		t.Errorf("expected 'panic recovered: boom', got %v", err)
	}
}

func TestRecoverWithLog_SwallowsPanic(t *testing.T) {
	defer withTestLogger(t)()

	func() {
		defer RecoverWithLog(nil, "test operation")
		panic("boom")
	}()
}
