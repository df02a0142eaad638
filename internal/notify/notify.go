// Package notify delivers operator-facing failure notifications. The title is
// the asset class a failure belongs to. Notifications are advisory: a failed
// delivery is reported to the caller and never changes build results.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/gen2brain/beeep"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/kiln/internal/logging"
)

// Notifier delivers a notification.
type Notifier interface {
	Notify(title, message string) error
}

// Console logs notifications at error level.
type Console struct {
	logger logging.Logger
}

// NewConsole creates a console notifier.
func NewConsole(logger logging.Logger) *Console {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Console{logger: logger.WithComponent("notify")}
}

// Notify implements Notifier.
func (c *Console) Notify(title, message string) error {
	c.logger.Error(context.Background(), nil, message, "title", title)
	return nil
}

// Desktop shows a desktop notification through the platform notifier.
type Desktop struct {
	prefix string
	title  cases.Caser
	mu     sync.Mutex
	send   func(title, message string, icon any) error
}

// NewDesktop creates a desktop notifier. prefix is shown before the title,
// as in "kiln: Styles".
func NewDesktop(prefix string) *Desktop {
	return &Desktop{prefix: prefix, title: cases.Title(language.English), send: beeep.Notify}
}

// Notify implements Notifier.
func (d *Desktop) Notify(title, message string) error {
	d.mu.Lock()
	// cases.Caser is stateful
	title = d.title.String(title)
	d.mu.Unlock()

	if d.prefix != "" {
		title = d.prefix + ": " + title
	}
	return d.send(title, message, "")
}

type multi []Notifier

// Multi fans a notification out to every non-nil notifier. All of them are
// tried; the errors are joined.
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Notify(title, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu       sync.Mutex
	received []Notification
}

// Notification is one recorded notification.
type Notification struct {
	Title   string
	Message string
}

// Notify implements Notifier.
func (r *Recorder) Notify(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, Notification{Title: title, Message: message})
	return nil
}

// Received returns a copy of the recorded notifications.
func (r *Recorder) Received() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.received))
	copy(out, r.received)
	return out
}
