package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// RecoverFn handles a recovered panic value and its stack trace.
type RecoverFn func(r interface{}, stack []byte)

// SafeGo runs fn in a goroutine, recovering any panic. A nil onPanic falls
// back to logging the panic on the global logger.
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			if onPanic != nil {
				onPanic(r, stack)
				return
			}
			logPanic(nil, fmt.Sprintf("%v", r), stack)
		}()
		fn()
	}()
}

// RecoverWithLog is a deferred panic barrier for background work where a panic
// should be logged and swallowed rather than crash the process.
func RecoverWithLog(ctx context.Context, operation string) {
	r := recover()
	if r == nil {
		return
	}
	logPanic(ctx, fmt.Sprintf("during %s: %v", operation, r), debug.Stack())
}

// WrapWithRecovery converts a panic inside fn into a returned error.
func WrapWithRecovery(fn func() error) func() (err error) {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(nil, fmt.Sprintf("%v", r), debug.Stack())
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return fn()
	}
}

func logPanic(ctx context.Context, detail string, stack []byte) {
	log := logger.Log
	if ctx != nil {
		log = logger.FromContext(ctx)
	}
	if log == nil {
		fmt.Fprintf(os.Stderr, "[PANIC] Recovered from panic %s\n%s\n", detail, stack)
		return
	}
	log.Error("Recovered from panic: "+detail, zap.ByteString("stack", stack))
}
