package robot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// handshake runs once per established session: authenticate, verify by
// probing, then either mark the session authenticated or force it closed.
// A forced close goes through the normal close event and so into the
// reconnect supervisor.
func (c *Connection) handshake(sess Session) {
	if !c.fireFor(sess, evAuthStart) {
		return
	}

	if err := c.authenticate(sess); err != nil {
		c.fireFor(sess, evAuthFailed)
		c.logger.Error("broker authentication failed, closing connection", "error", err)
		if cerr := sess.Close(); cerr != nil {
			c.logger.Debug("closing rejected session failed", "error", cerr)
		}
		return
	}

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.fireLocked(evAuthOK) //nolint:errcheck // Authenticating guaranteed by evAuthStart on this session
	c.attempts = 0
	c.supervisor.stop()
	c.mu.Unlock()

	c.logger.Info("broker session authenticated")

	c.runAuthHooks(context.Background())
}

// authenticate sends the credentials and then probes the broker. The
// authenticate primitive does not report rejected credentials; the broker
// drops the connection on the next request instead, so only the probe is
// a reliable signal.
func (c *Connection) authenticate(sess Session) error {
	err := c.withTimeout(c.verifyTimeout, func(ctx context.Context) error {
		if err := sess.Authenticate(ctx, c.creds); err != nil {
			return err
		}
		if _, err := sess.Topics(ctx); err != nil {
			return fmt.Errorf("verification probe: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return nil
}

// withTimeout runs fn with a context cancelled when d elapses on the
// connection clock.
func (c *Connection) withTimeout(d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}

// isTimeout reports whether err came from a bounded wait expiring.
func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectTimeout) ||
		errors.Is(err, ErrTourStartTimeout)
}
