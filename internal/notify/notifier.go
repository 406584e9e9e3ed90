// Package notify alerts operators about desk changes over Telegram and
// Discord. Alerts are filtered by event type so each desk receives only
// what it asked for.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Field is one labelled line of an alert.
type Field struct {
	Name  string
	Value string
}

// Alert is a single operator notification.
type Alert struct {
	// Event is the alert type used for filtering, e.g. "position_closed".
	Event  string
	Title  string
	Fields []Field
}

// Text renders the alert body as "name: value" lines.
func (a Alert) Text() string {
	var b strings.Builder
	for i, f := range a.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Sender delivers alerts over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// Notifier fans an alert out to every Sender whose event filter allows it.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
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

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers alert when its event is allowed. A failing sender does not
// stop delivery to the others; all failures are joined into the result.
func (n *Notifier) Notify(ctx context.Context, alert Alert) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[alert.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", alert.Event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", alert.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
