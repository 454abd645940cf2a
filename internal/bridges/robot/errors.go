package robot

import "errors"

// Domain errors for the robot bridge package.
var (
	// ErrNotConnected is returned when an operation needs a live transport
	// session and there is none.
	ErrNotConnected = errors.New("robot: not connected to broker")

	// ErrNotAuthenticated is returned by operations that require a verified
	// broker session.
	ErrNotAuthenticated = errors.New("robot: broker session not authenticated")

	// ErrAlreadyConnected is returned by Connect while a session is being
	// established or is already up.
	ErrAlreadyConnected = errors.New("robot: connection already active")

	// ErrConnectFailed wraps a transport-level dial failure.
	ErrConnectFailed = errors.New("robot: connect failed")

	// ErrConnectTimeout is returned when no connection or error event
	// arrives within the connect timeout.
	ErrConnectTimeout = errors.New("robot: connect timed out")

	// ErrAuthFailed is returned when the credential exchange or its
	// verification probe fails.
	ErrAuthFailed = errors.New("robot: authentication failed")

	// ErrShutdown is returned once the connection has been shut down.
	ErrShutdown = errors.New("robot: connection shut down")

	// ErrInvalidTransition is returned when an event is not valid in the
	// current connection state.
	ErrInvalidTransition = errors.New("robot: invalid state transition")

	// ErrStreamFailed wraps any failure while streaming an audio file.
	ErrStreamFailed = errors.New("robot: audio stream failed")

	// ErrStreamBusy is returned when the caller's context ends while
	// waiting for another stream to finish.
	ErrStreamBusy = errors.New("robot: audio streamer busy")

	// ErrTourStartFailed is returned when the robot reports that it could
	// not start the tour.
	ErrTourStartFailed = errors.New("robot: robot reported tour start failure")

	// ErrTourStartTimeout is returned when neither confirmation nor failure
	// arrives within the confirmation timeout.
	ErrTourStartTimeout = errors.New("robot: timed out waiting for tour start confirmation")

	// ErrTimeout is returned when a one-shot read from a channel times out.
	ErrTimeout = errors.New("robot: operation timed out")
)
