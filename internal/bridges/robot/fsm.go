package robot

import "fmt"

// State is the connection lifecycle state.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateReconnecting
)

var stateNames = map[State]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateConnected:      "connected",
	StateAuthenticating: "authenticating",
	StateAuthenticated:  "authenticated",
	StateReconnecting:   "reconnecting",
}

// String returns the lower-case state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}

// TransportUp reports whether a transport session exists in this state.
func (s State) TransportUp() bool {
	return s == StateConnected || s == StateAuthenticating || s == StateAuthenticated
}

// event drives the connection state machine.
type event int

const (
	evDial event = iota
	evDialFailed
	evTransportUp
	evAuthStart
	evAuthOK
	evAuthFailed
	evTransportDown
	evGiveUp
	evShutdown
)

var eventNames = map[event]string{
	evDial:          "dial",
	evDialFailed:    "dial_failed",
	evTransportUp:   "transport_up",
	evAuthStart:     "auth_start",
	evAuthOK:        "auth_ok",
	evAuthFailed:    "auth_failed",
	evTransportDown: "transport_down",
	evGiveUp:        "give_up",
	evShutdown:      "shutdown",
}

func (e event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// transition is the single transition function of the connection state
// machine. Every state change of a Connection goes through it.
func transition(from State, ev event) (State, error) {
	switch ev {
	case evDial:
		if from == StateDisconnected || from == StateReconnecting {
			return StateConnecting, nil
		}
	case evDialFailed:
		if from == StateConnecting {
			return StateReconnecting, nil
		}
	case evTransportUp:
		if from == StateConnecting {
			return StateConnected, nil
		}
	case evAuthStart:
		if from == StateConnected {
			return StateAuthenticating, nil
		}
	case evAuthOK:
		if from == StateAuthenticating {
			return StateAuthenticated, nil
		}
	case evAuthFailed:
		if from == StateAuthenticating {
			return StateConnected, nil
		}
	case evTransportDown:
		if from.TransportUp() {
			return StateReconnecting, nil
		}
	case evGiveUp:
		if from == StateReconnecting {
			return StateDisconnected, nil
		}
	case evShutdown:
		return StateDisconnected, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
