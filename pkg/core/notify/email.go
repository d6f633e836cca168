package notify

import (
	"context"
	"time"
)

// Kind names the notification a dispatcher handler produces
type Kind string

const (
	KindShiftCancelled   Kind = "shift_cancelled"
	KindShiftModified    Kind = "shift_modified"
	KindHelperSubscribed Kind = "helper_subscribed"
	KindBroadcastSent    Kind = "broadcast_sent"
)

// Email is a single outgoing message
type Email struct {
	From    string
	To      []string
	Bcc     []string
	ReplyTo []string
	Subject string
	Body    string
}

// Recipients returns every address the message is delivered to
func (e Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Bcc))
	out = append(out, e.To...)
	return append(out, e.Bcc...)
}

// Mailer delivers emails. Implementations must honour ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// MailerFunc adapts a function to the Mailer interface
type MailerFunc func(ctx context.Context, email Email) error

func (f MailerFunc) Send(ctx context.Context, email Email) error {
	return f(ctx, email)
}

// CalendarEvent describes the calendar entry attached to a shift subscription
type CalendarEvent struct {
	UID         string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
}

// CalendarExporter stores calendar events somewhere volunteers can fetch them
type CalendarExporter interface {
	Export(ctx context.Context, event CalendarEvent) error
}
