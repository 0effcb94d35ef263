// Package notify delivers sync and aggregation outcomes to chat channels
// (Lark, Discord, Telegram). Messages are built from the structured
// domain.SyncReport and filtered by event type so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Level controls how a sender highlights a message.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelFailure
)

// Message is a channel-neutral notification. Body is Markdown; each sender
// adapts it to its own dialect.
type Message struct {
	Title string
	Body  string
	Level Level
}

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a short identifier for the sender (e.g. "lark").
	Name() string
}

// Notifier dispatches messages to every registered Sender. Only events in
// the allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends msg for event if the event passes the filter. A nil
// Notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// dispatch delivers to every sender. One sender failing does not stop the
// others; failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
