package eventbus

import (
	"errors"
	"fmt"
)

// ErrPublish matches every *PublishError.
var ErrPublish = errors.New("eventbus: publish failed")

type PublishError struct {
	Topic   string
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("eventbus: publish %s to %s: %v", e.EventID, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) Is(target error) bool { return target == ErrPublish }

type permanentError struct{ err error }

func (e permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler failure that redelivery cannot fix. The message
// goes straight to the dead-letter topic.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type partialError struct{ err error }

func (e partialError) Error() string { return "partial: " + e.err.Error() }
func (e partialError) Unwrap() error { return e.err }

// Partial marks a handler that finished with some items failed. The message
// is acknowledged and the failure reported to the dead-letter topic.
func Partial(err error) error {
	if err == nil {
		return nil
	}
	return partialError{err: err}
}

func IsPartial(err error) bool {
	var p partialError
	return errors.As(err, &p)
}
