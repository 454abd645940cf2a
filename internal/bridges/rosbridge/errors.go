package rosbridge

import "errors"

// Domain errors for the rosbridge package.
var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("rosbridge: session closed")

	// ErrServiceFailed is returned when a service call reports failure.
	ErrServiceFailed = errors.New("rosbridge: service call failed")

	// ErrInvalidTopic is returned for empty or relative topic names.
	ErrInvalidTopic = errors.New("rosbridge: invalid topic")
)
