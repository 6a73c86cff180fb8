// Package notify delivers operator messages: Telegram when configured,
// the log otherwise.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Notifier is fire-and-forget: delivery failures are logged, never returned.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	// Confirm asks the operator a yes/no question and waits up to timeout.
	Confirm(ctx context.Context, prompt string, timeout time.Duration) bool
}

// StatusFunc renders the current run state for the /status command.
type StatusFunc func() string

// Stdout logs every message and always confirms.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stdout{log: log}
}

func (s *Stdout) Send(msg string)                  { s.log.Info("notify", zap.String("message", msg)) }
func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
func (s *Stdout) Confirm(_ context.Context, prompt string, _ time.Duration) bool {
	s.log.Info("confirm (auto-yes)", zap.String("prompt", prompt))
	return true
}
