package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/richxcame/tartanilla-earnings/pkg/logger"
	"go.uber.org/zap"
)

// TaskContext holds the request values carried over to background work
// after the originating request has returned.
type TaskContext struct {
	CorrelationID string
	StartTime     time.Time
	TaskName      string
}

// CaptureContext captures the current context values for async propagation
func CaptureContext(ctx context.Context, taskName string) TaskContext {
	return TaskContext{
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		StartTime:     time.Now(),
		TaskName:      taskName,
	}
}

// NewContext creates a fresh background context carrying the captured values.
// It is never cancelled by the originating request.
func (tc TaskContext) NewContext() context.Context {
	ctx := context.Background()
	if tc.CorrelationID != "" {
		ctx = logger.ContextWithCorrelationID(ctx, tc.CorrelationID)
	}
	return ctx
}

// NewContextWithTimeout creates a new context with timeout and captured values
func (tc TaskContext) NewContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(tc.NewContext(), timeout)
}

// PanicError is returned by Run when the task panicked.
type PanicError struct {
	Task  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Run executes fn synchronously under ctx, converting a panic into a
// *PanicError and logging it with the stack.
func Run(ctx context.Context, tc TaskContext, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "async task panicked",
				zap.String("task", tc.TaskName),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = &PanicError{Task: tc.TaskName, Value: r}
		}
	}()
	return fn(ctx)
}
