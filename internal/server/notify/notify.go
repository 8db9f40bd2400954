// Package notify delivers reminder and lifecycle notifications. A
// Dispatcher sends one message to one recipient; callers decide what to do
// when a single recipient fails.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/lfras/internal/logging"
)

// Message levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Message is one notification addressed to one recipient.
type Message struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Level    string         `json:"level"`
	LinkURL  string         `json:"link_url,omitempty"`
	Category string         `json:"category"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Dispatcher sends a message. A nil error means the transport accepted it.
type Dispatcher interface {
	Send(ctx context.Context, m Message) error
}

// LogDispatcher only logs messages. It is the default when no transport is
// configured.
type LogDispatcher struct {
	logger logging.Logger
}

func NewLogDispatcher(l logging.Logger) *LogDispatcher {
	return &LogDispatcher{logger: l.With("module", "notify_log")}
}

func (d *LogDispatcher) Send(ctx context.Context, m Message) error {
	d.logger.Info(ctx, "notification", "to", m.To, "subject", m.Subject, "level", m.Level, "category", m.Category)
	return nil
}

// RenderBody appends the link, if any, to the plain-text body.
func RenderBody(m Message) string {
	var b strings.Builder
	b.WriteString(m.Body)
	if m.LinkURL != "" {
		fmt.Fprintf(&b, "\n\nOpen: %s\n", m.LinkURL)
	}
	return b.String()
}
