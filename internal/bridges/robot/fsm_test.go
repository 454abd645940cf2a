package robot

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		ev      event
		want    State
		wantErr bool
	}{
		{"dial from disconnected", StateDisconnected, evDial, StateConnecting, false},
		{"dial from reconnecting", StateReconnecting, evDial, StateConnecting, false},
		{"dial while connected", StateConnected, evDial, StateConnected, true},
		{"dial while authenticated", StateAuthenticated, evDial, StateAuthenticated, true},
		{"dial failed", StateConnecting, evDialFailed, StateReconnecting, false},
		{"transport up", StateConnecting, evTransportUp, StateConnected, false},
		{"transport up without dial", StateDisconnected, evTransportUp, StateDisconnected, true},
		{"auth start", StateConnected, evAuthStart, StateAuthenticating, false},
		{"auth ok", StateAuthenticating, evAuthOK, StateAuthenticated, false},
		{"auth ok without start", StateConnected, evAuthOK, StateConnected, true},
		{"auth failed", StateAuthenticating, evAuthFailed, StateConnected, false},
		{"drop while connected", StateConnected, evTransportDown, StateReconnecting, false},
		{"drop while authenticating", StateAuthenticating, evTransportDown, StateReconnecting, false},
		{"drop while authenticated", StateAuthenticated, evTransportDown, StateReconnecting, false},
		{"drop while disconnected", StateDisconnected, evTransportDown, StateDisconnected, true},
		{"give up", StateReconnecting, evGiveUp, StateDisconnected, false},
		{"give up while connecting", StateConnecting, evGiveUp, StateConnecting, true},
		{"shutdown", StateAuthenticated, evShutdown, StateDisconnected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transition(tt.from, tt.ev)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("transition() error = %v, want ErrInvalidTransition", err)
				}
			} else if err != nil {
				t.Fatalf("transition() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("transition() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAuthenticatedImpliesTransportUp(t *testing.T) {
	states := []State{
		StateDisconnected, StateConnecting, StateConnected,
		StateAuthenticating, StateAuthenticated, StateReconnecting,
	}
	for _, s := range states {
		if s == StateAuthenticated && !s.TransportUp() {
			t.Errorf("%s: authenticated without transport", s)
		}
	}
}

func TestStateString(t *testing.T) {
	if got := StateAuthenticating.String(); got != "authenticating" {
		t.Errorf("String() = %q, want %q", got, "authenticating")
	}
	text, err := StateReconnecting.MarshalText()
	if err != nil || string(text) != "reconnecting" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("authenticated")); err != nil || s != StateAuthenticated {
		t.Errorf("UnmarshalText(authenticated) = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("sleeping")); err == nil {
		t.Error("UnmarshalText(sleeping) succeeded")
	}
}
