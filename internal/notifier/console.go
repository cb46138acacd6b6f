package notifier

import (
	"context"
	"fmt"
	"io"

	"DipSentinel/internal/model"
)

// ConsoleNotifier writes the text report to a terminal or log stream.
type ConsoleNotifier struct {
	W     io.Writer
	Color bool
}

func NewConsoleNotifier(w io.Writer, color bool) *ConsoleNotifier {
	return &ConsoleNotifier{W: w, Color: color}
}

func (c *ConsoleNotifier) Name() string { return "console" }

func (c *ConsoleNotifier) Send(ctx context.Context, report *model.Report) error {
	if err := ctx.Err(); err != nil {
		return &SendError{Sink: c.Name(), Err: err}
	}
	if _, err := io.WriteString(c.W, FormatText(report, c.Color)); err != nil {
		return &SendError{Sink: c.Name(), Err: fmt.Errorf("write report: %w", err)}
	}
	return nil
}
