package robot

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	b := newFakeBroker()
	b.dialErr = errors.New("connection refused")
	conn, fake := newTestConnection(t, b, 4)

	if err := conn.Connect(context.Background()); err == nil {
		t.Fatal("Connect() expected error")
	}
	if !conn.Status().Reconnecting {
		t.Fatal("supervisor not started after failed connect")
	}

	// Every failed attempt counts twice: once before the dial, once after
	// it fails. A cap of 4 therefore allows two supervised dials.
	for i, wantAttempts := range []int{2, 4} {
		fake.Advance(5 * time.Second)
		waitFor(t, "failed attempt", func() bool {
			return conn.Status().ConnectionAttempts == wantAttempts
		})
		if got := b.dialCount(); got != i+2 {
			t.Fatalf("dials after tick %d = %d, want %d", i+1, got, i+2)
		}
	}

	fake.Advance(5 * time.Second)
	waitFor(t, "give up", func() bool { return !conn.Status().Reconnecting })

	st := conn.Status()
	if st.State != StateDisconnected || st.ConnectionAttempts != 4 {
		t.Errorf("Status() = %+v, want disconnected with 4 attempts", st)
	}
	if fake.PendingCount() != 0 {
		t.Errorf("pending timers = %d, want 0 after giving up", fake.PendingCount())
	}

	for i := 0; i < 3; i++ {
		fake.Advance(5 * time.Second)
	}
	time.Sleep(10 * time.Millisecond)
	if got := b.dialCount(); got != 3 {
		t.Errorf("dials after giving up = %d, want 3", got)
	}

	// An explicit connect is still honoured.
	b.set(func(b *fakeBroker) { b.dialErr = nil })
	connectAuthenticated(t, conn)
	if got := conn.Status().ConnectionAttempts; got != 0 {
		t.Errorf("ConnectionAttempts after explicit connect = %d, want 0", got)
	}
}

func TestExplicitConnectAfterGivingUpIsSingleAttempt(t *testing.T) {
	b := newFakeBroker()
	b.dialErr = errors.New("connection refused")
	conn, fake := newTestConnection(t, b, 2)

	if err := conn.Connect(context.Background()); err == nil {
		t.Fatal("Connect() expected error")
	}
	fake.Advance(5 * time.Second)
	waitFor(t, "failed attempt", func() bool { return conn.Status().ConnectionAttempts == 2 })
	fake.Advance(5 * time.Second)
	waitFor(t, "give up", func() bool { return !conn.Status().Reconnecting })

	// The budget is not refilled: the explicit dial fails, the supervisor
	// starts, and it gives up on its first tick without dialling.
	if err := conn.Connect(context.Background()); err == nil {
		t.Fatal("explicit Connect() expected error")
	}
	if got := b.dialCount(); got != 3 {
		t.Fatalf("dials after explicit connect = %d, want 3", got)
	}
	if got := conn.Status().ConnectionAttempts; got != 2 {
		t.Errorf("ConnectionAttempts after explicit connect = %d, want 2", got)
	}

	fake.Advance(5 * time.Second)
	waitFor(t, "give up again", func() bool { return !conn.Status().Reconnecting })
	fake.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := b.dialCount(); got != 3 {
		t.Errorf("dials after second give up = %d, want 3", got)
	}
}

func TestReconnectCounterResetsOnlyOnAuthentication(t *testing.T) {
	b := newFakeBroker()
	b.topicsErr = errors.New("connection reset by broker")
	conn, fake := newTestConnection(t, b, 10)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "first rejection", func() bool {
		return conn.State() == StateReconnecting && conn.Status().Reconnecting
	})

	// Transport connects succeed but verification keeps failing.
	for tick := 1; tick <= 2; tick++ {
		fake.Advance(5 * time.Second)
		waitFor(t, "rejected reconnect", func() bool {
			s := b.session(tick)
			return s != nil && s.closed() && conn.State() == StateReconnecting
		})
		if got := conn.Status().ConnectionAttempts; got != tick {
			t.Fatalf("ConnectionAttempts after tick %d = %d, want %d", tick, got, tick)
		}
	}

	b.set(func(b *fakeBroker) { b.topicsErr = nil })
	fake.Advance(5 * time.Second)
	waitFor(t, "authentication", conn.IsAuthenticated)

	st := conn.Status()
	if st.ConnectionAttempts != 0 || st.Reconnecting {
		t.Errorf("Status() = %+v, want attempts reset and supervisor stopped", st)
	}
}

func TestReconnectSingleRetryLoop(t *testing.T) {
	b := newFakeBroker()
	conn, fake := newTestConnection(t, b, 10)
	connectAuthenticated(t, conn)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	waitFor(t, "reconnect start", func() bool { return conn.Status().Reconnecting })

	// Further close events while reconnecting must not add a second loop.
	if conn.supervisor.start() {
		t.Error("start() while reconnecting = true, want false")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close() while disconnected error = %v", err)
	}
	if got := fake.PendingCount(); got != 1 {
		t.Errorf("pending timers = %d, want exactly 1 reconnect ticker", got)
	}
}

func TestSupervisorTimerMatchesFlag(t *testing.T) {
	b := newFakeBroker()
	conn, fake := newTestConnection(t, b, 10)
	s := conn.supervisor

	if s.active() || fake.PendingCount() != 0 {
		t.Fatal("fresh supervisor is active")
	}
	if !s.start() {
		t.Fatal("start() = false on idle supervisor")
	}
	if s.start() {
		t.Error("second start() = true")
	}
	if !s.active() || fake.PendingCount() != 1 {
		t.Errorf("active() = %v, pending = %d, want true, 1", s.active(), fake.PendingCount())
	}

	s.stop()
	s.stop()
	if s.active() || fake.PendingCount() != 0 {
		t.Errorf("after stop: active() = %v, pending = %d, want false, 0", s.active(), fake.PendingCount())
	}
}
