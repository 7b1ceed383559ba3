package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrTransport        = errors.New("review api request failed")
	ErrUnexpectedStatus = errors.New("review api returned unexpected status")
	ErrAPIShape         = errors.New("malformed review api response")
	ErrMissingKey       = errors.New("missing key")
	ErrUnexpectedType   = errors.New("unexpected type")
	ErrUnknownStatus    = errors.New("unknown homework status")
	ErrNotify           = errors.New("failed to send notification")
)

// StatusError is returned when the review API answers with anything but 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d", ErrUnexpectedStatus, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

func MissingKey(key string) error {
	return fmt.Errorf("%w: %w %q", ErrAPIShape, ErrMissingKey, key)
}

func UnexpectedType(what string, got any) error {
	return fmt.Errorf("%w: %w: %s is %T", ErrAPIShape, ErrUnexpectedType, what, got)
}

func UnknownStatus(status string) error {
	return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
}

func Transport(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func Notify(err error) error {
	return fmt.Errorf("%w: %w", ErrNotify, err)
}

// MissingVariables reports every required environment variable that is unset.
func MissingVariables(names ...string) error {
	return fmt.Errorf("%w: missing required environment variables %v", ErrConfiguration, names)
}
