package robot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/clock"
)

// reconnectSupervisor retries the connection on a fixed interval after an
// unexpected close. At most one retry loop exists at a time: the ticker is
// non-nil exactly while the supervisor is active.
//
// Lock order: Connection.mu may be held while taking mu, never the reverse.
type reconnectSupervisor struct {
	conn        *Connection
	clock       clock.Clock
	interval    time.Duration
	maxAttempts int
	logger      Logger

	mu     sync.Mutex
	ticker *clock.Ticker
	stopCh chan struct{}
}

// start activates the retry loop. It is a no-op returning false when the
// loop is already running.
func (s *reconnectSupervisor) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return false
	}
	s.ticker = s.clock.NewTicker(s.interval)
	s.stopCh = make(chan struct{})
	go s.run(s.ticker, s.stopCh)

	s.logger.Info("broker reconnect started", "interval", s.interval, "max_attempts", s.maxAttempts)
	return true
}

// stop cancels the retry loop if it is running.
func (s *reconnectSupervisor) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *reconnectSupervisor) stopLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.ticker = nil
	s.stopCh = nil
}

// active reports whether the retry loop is running.
func (s *reconnectSupervisor) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *reconnectSupervisor) run(ticker *clock.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			if !s.retry(stop) {
				return
			}
		}
	}
}

// retry performs one tick. Each attempt counts once before dialling and
// once more if the dial fails; the counter only resets on successful
// authentication, so sessions rejected during the handshake still move
// toward the cap.
func (s *reconnectSupervisor) retry(stop chan struct{}) bool {
	attempts, state := s.conn.snapshot()

	if attempts >= s.maxAttempts {
		s.mu.Lock()
		if s.stopCh == stop {
			s.stopLocked()
		}
		s.mu.Unlock()

		s.conn.giveUp()
		s.logger.Error("broker reconnect attempts exhausted, giving up",
			"attempts", attempts, "max_attempts", s.maxAttempts)
		return false
	}

	// A session is already up or being dialled; wait for its outcome.
	if state != StateReconnecting {
		return true
	}

	s.conn.addAttempt()
	s.logger.Info("attempting broker reconnect", "attempt", attempts+1, "max_attempts", s.maxAttempts)

	if err := s.conn.Connect(context.Background()); err != nil {
		if errors.Is(err, ErrAlreadyConnected) || errors.Is(err, ErrShutdown) {
			return true
		}
		s.conn.addAttempt()
		s.logger.Warn("broker reconnect attempt failed", "error", err, "timeout", isTimeout(err))
	}
	return true
}
