package notify

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Queue.Send when no buffer space is left
	ErrQueueFull = errors.New("mail queue is full")

	// ErrQueueClosed is returned by Queue.Send after Stop
	ErrQueueClosed = errors.New("mail queue is closed")
)

// TransportError records a failed email send or calendar export.
// Dispatcher handlers collect these instead of returning them to the store.
type TransportError struct {
	Kind      Kind
	Entity    string // ID of the shift, registration or message that triggered the send
	Recipient string // Empty for batched sends and calendar exports
	Err       error
}

func (e *TransportError) Error() string {
	if e.Recipient == "" {
		return fmt.Sprintf("%s for %s: %v", e.Kind, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s for %s to %s: %v", e.Kind, e.Entity, e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the send was abandoned because it ran out of time
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// category buckets an error for the metrics error label
func category(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueClosed):
		return "queue"
	default:
		return "transport"
	}
}
