package notifier

import (
	"context"
	"fmt"

	"DipSentinel/internal/model"
)

// Notifier delivers a cycle report to one sink.
type Notifier interface {
	Name() string
	Send(ctx context.Context, report *model.Report) error
}

// SendError wraps a sink failure.
type SendError struct {
	Sink string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s notification failed: %v", e.Sink, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
