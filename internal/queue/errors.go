package queue

import (
	"errors"
	"fmt"
)

// QueueError reports a transient admission failure. Only the current worker
// should give up; the queue stays ACTIVE.
type QueueError struct {
	Queue  string
	URL    string
	Reason string
}

func (e *QueueError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("queue %q: %s", e.Queue, e.Reason)
	}
	return fmt.Sprintf("queue %q: %s (%s)", e.Queue, e.Reason, e.URL)
}

// QueueEndError reports a terminal condition. The whole queue must stop.
type QueueEndError struct {
	Queue  string
	URL    string
	Reason string
}

func (e *QueueEndError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("queue %q ended: %s", e.Queue, e.Reason)
	}
	return fmt.Sprintf("queue %q ended: %s (%s)", e.Queue, e.Reason, e.URL)
}

// AsTransient returns the *QueueError wrapped by err, if any.
func AsTransient(err error) (*QueueError, bool) {
	var qe *QueueError
	ok := errors.As(err, &qe)
	return qe, ok
}

// AsTerminal returns the *QueueEndError wrapped by err, if any.
func AsTerminal(err error) (*QueueEndError, bool) {
	var qe *QueueEndError
	ok := errors.As(err, &qe)
	return qe, ok
}

// IsTransient reports whether err wraps a *QueueError.
func IsTransient(err error) bool {
	_, ok := AsTransient(err)
	return ok
}

// IsTerminal reports whether err wraps a *QueueEndError.
func IsTerminal(err error) bool {
	_, ok := AsTerminal(err)
	return ok
}
