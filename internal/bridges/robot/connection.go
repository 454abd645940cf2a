package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/clock"
)

// Connection defaults.
const (
	DefaultConnectTimeout       = 5 * time.Second
	DefaultVerifyTimeout        = 5 * time.Second
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10

	clientCountTimeout = 5 * time.Second
)

// Options configures a Connection.
type Options struct {
	// Dialer opens transport sessions. Required.
	Dialer Dialer

	// URL is the broker endpoint passed to the dialer. Required.
	URL string

	// Credentials are sent by the authentication handshake.
	Credentials Credentials

	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration

	// VerifyTimeout bounds the authenticate-and-probe handshake.
	VerifyTimeout time.Duration

	// ReconnectInterval is the period of the reconnect supervisor.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts caps the attempt counter before the supervisor
	// gives up.
	MaxReconnectAttempts int

	// Clock drives every timer. Defaults to the real clock.
	Clock clock.Clock

	// Logger is optional.
	Logger Logger
}

// Status is the read-only health snapshot of the connection.
type Status struct {
	Connected          bool  `json:"status"`
	Reconnecting       bool  `json:"reconnecting"`
	Authenticated      bool  `json:"authentication"`
	ConnectionAttempts int   `json:"connectionAttempts"`
	State              State `json:"state"`
}

// Connection owns the single transport session to the robot broker.
//
// Construct one per process and share it; Shutdown ends its lifecycle.
// All state changes go through the transition function in fsm.go.
type Connection struct {
	dialer         Dialer
	url            string
	creds          Credentials
	connectTimeout time.Duration
	verifyTimeout  time.Duration
	clock          clock.Clock
	logger         Logger
	supervisor     *reconnectSupervisor

	mu       sync.Mutex
	state    State
	session  Session
	attempts int
	closed   bool
	authed   chan struct{} // closed while state is StateAuthenticated
	moveAdv  *Advertisement

	hooksMu sync.RWMutex
	hooks   []func(ctx context.Context)
}

// NewConnection creates a disconnected Connection. Call Connect to start it.
func NewConnection(opts Options) (*Connection, error) {
	if opts.Dialer == nil {
		return nil, errors.New("robot: dialer is required")
	}
	if opts.URL == "" {
		return nil, errors.New("robot: broker url is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	logger := loggerOrNop(opts.Logger)

	c := &Connection{
		dialer:         opts.Dialer,
		url:            opts.URL,
		creds:          opts.Credentials,
		connectTimeout: opts.ConnectTimeout,
		verifyTimeout:  opts.VerifyTimeout,
		clock:          opts.Clock,
		logger:         logger,
		state:          StateDisconnected,
		authed:         make(chan struct{}),
	}
	c.supervisor = &reconnectSupervisor{
		conn:        c,
		clock:       opts.Clock,
		interval:    opts.ReconnectInterval,
		maxAttempts: opts.MaxReconnectAttempts,
		logger:      logger,
	}
	return c, nil
}

// Connect opens a transport session. It returns once the connection is
// established, the dial fails, or the connect timeout elapses, whichever
// happens first; the losing outcomes are discarded. A dial that succeeds
// after the timeout has its session closed.
//
// Authentication runs asynchronously after a successful connect; use
// WaitAuthenticated to wait for it. A failed connect starts the reconnect
// supervisor.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShutdown
	}
	if err := c.fireLocked(evDial); err != nil {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrAlreadyConnected, state)
	}
	c.mu.Unlock()

	c.logger.Info("connecting to broker", "url", c.url)

	sess, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.fireLocked(evDialFailed) //nolint:errcheck // state may have moved on via Shutdown
		closed := c.closed
		c.mu.Unlock()

		c.logger.Warn("broker connect failed", "url", c.url, "error", err)
		if !closed {
			c.supervisor.start()
		}
		return err
	}

	c.mu.Lock()
	if c.closed || c.state != StateConnecting {
		c.mu.Unlock()
		sess.Close() //nolint:errcheck // Discarding a session nobody owns
		return ErrShutdown
	}
	c.session = sess
	c.fireLocked(evTransportUp) //nolint:errcheck // Connecting checked above
	c.mu.Unlock()

	sess.OnError(func(err error) {
		c.logger.Warn("broker transport error", "error", err)
	})
	c.logger.Info("connected to broker", "url", c.url)

	go c.watch(sess)
	go c.handshake(sess)
	return nil
}

type dialResult struct {
	sess Session
	err  error
}

// dial races the dialer against the connect timeout and ctx.
func (c *Connection) dial(ctx context.Context) (Session, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan dialResult, 1)
	go func() {
		sess, err := c.dialer.Dial(dialCtx, c.url)
		results <- dialResult{sess: sess, err: err}
	}()

	timer := c.clock.NewTimer(c.connectTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, r.err)
		}
		return r.sess, nil
	case <-timer.C:
		go discardLate(results)
		return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, c.connectTimeout)
	case <-ctx.Done():
		go discardLate(results)
		return nil, ctx.Err()
	}
}

func discardLate(results <-chan dialResult) {
	if r := <-results; r.err == nil && r.sess != nil {
		r.sess.Close() //nolint:errcheck // Late session from an abandoned attempt
	}
}

// watch turns the end of a session into the close event.
func (c *Connection) watch(sess Session) {
	<-sess.Done()

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.moveAdv = nil
	if c.closed {
		c.fireLocked(evShutdown) //nolint:errcheck // Shutdown is valid from every state
		c.mu.Unlock()
		return
	}
	c.fireLocked(evTransportDown) //nolint:errcheck // session set implies transport up
	c.mu.Unlock()

	c.logger.Warn("broker connection closed", "error", sess.Err())
	c.supervisor.start()
}

// Close tears down the current session. The resulting close event starts
// the reconnect supervisor exactly as an unexpected drop would. Use
// Shutdown to stop for good.
func (c *Connection) Close() error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close()
}

// Shutdown stops the reconnect supervisor and closes the session without
// triggering a reconnect. The Connection cannot be reused afterwards.
func (c *Connection) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.session
	c.session = nil
	c.moveAdv = nil
	c.fireLocked(evShutdown) //nolint:errcheck // Shutdown is valid from every state
	c.mu.Unlock()

	c.supervisor.stop()
	if sess != nil {
		return sess.Close()
	}
	return nil
}

// fireLocked applies ev to the current state. Must be called with c.mu held.
func (c *Connection) fireLocked(ev event) error {
	next, err := transition(c.state, ev)
	if err != nil {
		return err
	}
	prev := c.state
	c.state = next

	switch {
	case next == StateAuthenticated:
		close(c.authed)
	case prev == StateAuthenticated:
		c.authed = make(chan struct{})
	}

	c.logger.Debug("broker connection state changed", "from", prev, "to", next, "event", ev)
	return nil
}

// fireFor applies ev only if sess is still the current session.
func (c *Connection) fireFor(sess Session, ev event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess {
		return false
	}
	return c.fireLocked(ev) == nil
}

// OnAuthenticated registers fn to run after every successful
// authentication, in registration order.
func (c *Connection) OnAuthenticated(fn func(ctx context.Context)) {
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hooksMu.Unlock()
}

func (c *Connection) runAuthHooks(ctx context.Context) {
	c.hooksMu.RLock()
	hooks := make([]func(context.Context), len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthenticated reports whether the session has passed verification.
func (c *Connection) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

// Status returns the health snapshot.
func (c *Connection) Status() Status {
	c.mu.Lock()
	state, attempts := c.state, c.attempts
	c.mu.Unlock()

	return Status{
		Connected:          state.TransportUp(),
		Reconnecting:       c.supervisor.active(),
		Authenticated:      state == StateAuthenticated,
		ConnectionAttempts: attempts,
		State:              state,
	}
}

// HealthCheck returns nil when the broker session is authenticated.
func (c *Connection) HealthCheck(_ context.Context) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// WaitAuthenticated blocks until the session is authenticated or ctx ends.
func (c *Connection) WaitAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShutdown
	}
	ch := c.authed
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) snapshot() (int, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts, c.state
}

func (c *Connection) addAttempt() {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
}

func (c *Connection) giveUp() {
	c.mu.Lock()
	c.fireLocked(evGiveUp) //nolint:errcheck // a manual Connect may already be dialling
	c.mu.Unlock()
}

func (c *Connection) current() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || !c.state.TransportUp() {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

func (c *Connection) authenticatedSession() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.state != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return c.session, nil
}

// Subscribe registers handler on topic for the current session.
func (c *Connection) Subscribe(ctx context.Context, topic, msgType string, handler MessageHandler) (Subscription, error) {
	sess, err := c.current()
	if err != nil {
		return Subscription{}, err
	}
	id, err := sess.Subscribe(ctx, topic, msgType, handler)
	if err != nil {
		return Subscription{}, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return Subscription{Topic: topic, ID: id, session: sess}, nil
}

// Unsubscribe releases sub on the session it was created on.
func (c *Connection) Unsubscribe(ctx context.Context, sub Subscription) error {
	if sub.session == nil {
		return ErrNotConnected
	}
	if err := sub.session.Unsubscribe(ctx, sub.Topic, sub.ID); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", sub.Topic, err)
	}
	return nil
}

// Advertise declares an outbound channel on the current session.
func (c *Connection) Advertise(ctx context.Context, topic, msgType string) (Advertisement, error) {
	sess, err := c.current()
	if err != nil {
		return Advertisement{}, err
	}
	if err := sess.Advertise(ctx, topic, msgType); err != nil {
		return Advertisement{}, fmt.Errorf("advertising %s: %w", topic, err)
	}
	return Advertisement{Topic: topic, Type: msgType, session: sess}, nil
}

// Unadvertise releases adv on the session it was created on.
func (c *Connection) Unadvertise(ctx context.Context, adv Advertisement) error {
	if adv.session == nil {
		return ErrNotConnected
	}
	if err := adv.session.Unadvertise(ctx, adv.Topic); err != nil {
		return fmt.Errorf("unadvertising %s: %w", adv.Topic, err)
	}
	return nil
}

// Publish sends msg on an advertised channel.
func (c *Connection) Publish(ctx context.Context, adv Advertisement, msg any) error {
	if adv.session == nil {
		return ErrNotConnected
	}
	if err := adv.session.Publish(ctx, adv.Topic, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", adv.Topic, err)
	}
	return nil
}

// Topics lists the channels known to the broker.
func (c *Connection) Topics(ctx context.Context) ([]string, error) {
	sess, err := c.authenticatedSession()
	if err != nil {
		return nil, err
	}
	topics, err := sess.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	return topics, nil
}

// ClientCount reads one message from /client_count and unsubscribes.
func (c *Connection) ClientCount(ctx context.Context) (int32, error) {
	if _, err := c.authenticatedSession(); err != nil {
		return 0, err
	}

	counts := make(chan int32, 1)
	sub, err := c.Subscribe(ctx, TopicClientCount, TypeInt32, func(raw json.RawMessage) {
		var msg Int32Msg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		select {
		case counts <- msg.Data:
		default:
		}
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := c.Unsubscribe(context.WithoutCancel(ctx), sub); err != nil {
			c.logger.Debug("client count unsubscribe failed", "error", err)
		}
	}()

	timer := c.clock.NewTimer(clientCountTimeout)
	defer timer.Stop()

	select {
	case n := <-counts:
		return n, nil
	case <-timer.C:
		return 0, fmt.Errorf("%w: no message on %s within %s", ErrTimeout, TopicClientCount, clientCountTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendMoveCommand publishes a navigation goal in the map frame. The goal
// channel is advertised once per session.
func (c *Connection) SendMoveCommand(ctx context.Context, goal PoseSample) error {
	sess, err := c.authenticatedSession()
	if err != nil {
		return err
	}

	c.mu.Lock()
	adv := c.moveAdv
	c.mu.Unlock()

	if adv == nil || adv.session != sess {
		a, err := c.Advertise(ctx, TopicMoveGoal, TypePoseStamped)
		if err != nil {
			return err
		}
		c.mu.Lock()
		if c.session == sess {
			c.moveAdv = &a
		}
		c.mu.Unlock()
		adv = &a
	}

	c.logger.Info("sending move command", "x", goal.X, "y", goal.Y)
	return c.Publish(ctx, *adv, goalFrom(goal))
}
