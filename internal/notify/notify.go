// ABOUTME: Notice type and Notifier fan-out for user-initiated action outcomes
// ABOUTME: Console and Matrix sinks live alongside in this package

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Level distinguishes success from failure notices.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Action names the user action a notice reports on.
type Action string

const (
	ActionInit        Action = "init"
	ActionCreateStudy Action = "create_study"
	ActionSubmit      Action = "submit"
)

// Notice is one user-visible message.
type Notice struct {
	Level   Level
	Action  Action
	Title   string
	Message string
}

// String renders the notice as a single line.
func (n Notice) String() string {
	if n.Message == "" {
		return n.Title
	}
	return n.Title + ": " + n.Message
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, target := range m {
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Console prints notices as colored lines.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	success *color.Color
	failure *color.Color
	info    *color.Color
}

// NewConsole writes to w. Colors follow fatih/color's terminal detection
// unless noColor is set.
func NewConsole(w io.Writer, noColor bool) *Console {
	c := &Console{
		w:       w,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
	}
	if noColor {
		c.success.DisableColor()
		c.failure.DisableColor()
		c.info.DisableColor()
	}
	return c
}

// Notify implements Notifier.
func (c *Console) Notify(_ context.Context, n Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch n.Level {
	case LevelSuccess:
		_, err = c.success.Fprintf(c.w, "✓ %s\n", n)
	case LevelError:
		_, err = c.failure.Fprintf(c.w, "✗ %s\n", n)
	default:
		_, err = c.info.Fprintf(c.w, "• %s\n", n)
	}
	if err != nil {
		return fmt.Errorf("writing notice: %w", err)
	}
	return nil
}

// Discard drops every notice.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Notice) error { return nil }
