package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when a webhook signature cannot be verified.
	ErrAuthentication = errors.New("webhook signature verification failed")
	// ErrValidation is returned for malformed or incomplete event payloads.
	ErrValidation = errors.New("invalid webhook payload")
	// ErrTransientStore wraps failed store writes that are safe to retry.
	ErrTransientStore = errors.New("store operation failed")
	// ErrEventInFlight is returned when another delivery of the same event holds the lock.
	ErrEventInFlight = errors.New("webhook event is already being processed")
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
