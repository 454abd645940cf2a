package rosbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
)

// Dialer defaults.
const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 8 << 20
)

// Logger is the structured logger used by the transport.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// DialerOptions configures a Dialer.
type DialerOptions struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           Logger
}

// Dialer opens rosbridge sessions. It implements robot.Dialer.
type Dialer struct {
	ws           *websocket.Dialer
	writeTimeout time.Duration
	logger       Logger
}

// NewDialer creates a Dialer.
func NewDialer(opts DialerOptions) *Dialer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Dialer{
		ws: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  32 << 10,
		},
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
	}
}

// Dial connects to a rosbridge websocket endpoint.
func (d *Dialer) Dial(ctx context.Context, url string) (robot.Session, error) {
	conn, resp, err := d.ws.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	conn.SetReadLimit(defaultReadLimit)

	s := &session{
		conn:         conn,
		writeTimeout: d.writeTimeout,
		logger:       d.logger,
		handlers:     make(map[string]map[string]robot.MessageHandler),
		pending:      make(map[string]chan serviceResponse),
		done:         make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// session is one rosbridge websocket connection.
type session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       Logger
	seq          atomic.Uint64

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[string]robot.MessageHandler // topic -> subscription id -> handler
	pending  map[string]chan serviceResponse
	onError  func(error)

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func (s *session) nextID(kind, name string) string {
	return fmt.Sprintf("%s:%s:%d", kind, name, s.seq.Add(1))
}

func validTopic(topic string) error {
	if topic == "" || !strings.HasPrefix(topic, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

func (s *session) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)) //nolint:errcheck // write error reported below
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.shutdown(err)
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Authenticate sends the auth frame. rosbridge does not answer it.
func (s *session) Authenticate(_ context.Context, creds robot.Credentials) error {
	return s.write(authFrame{
		Op:     opAuth,
		MAC:    creds.MAC,
		Client: creds.Client,
		Dest:   creds.Dest,
		Rand:   creds.Rand,
		T:      creds.Time,
		Level:  creds.Level,
		End:    creds.End,
	})
}

// Topics calls /rosapi/topics.
func (s *session) Topics(ctx context.Context) ([]string, error) {
	raw, err := s.call(ctx, topicsService, struct{}{})
	if err != nil {
		return nil, err
	}
	var v topicsValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", topicsService, err)
	}
	return v.Topics, nil
}

func (s *session) call(ctx context.Context, service string, args any) (json.RawMessage, error) {
	id := s.nextID(opCallService, service)
	reply := make(chan serviceResponse, 1)

	s.mu.Lock()
	s.pending[id] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(serviceFrame{Op: opCallService, ID: id, Service: service, Args: args}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		if !r.ok {
			return nil, fmt.Errorf("%w: %s", ErrServiceFailed, service)
		}
		return r.values, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *session) Advertise(_ context.Context, topic, msgType string) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	return s.write(topicFrame{Op: opAdvertise, ID: s.nextID(opAdvertise, topic), Topic: topic, Type: msgType})
}

func (s *session) Unadvertise(_ context.Context, topic string) error {
	return s.write(topicFrame{Op: opUnadvertise, Topic: topic})
}

func (s *session) Publish(_ context.Context, topic string, msg any) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	return s.write(topicFrame{Op: opPublish, Topic: topic, Msg: msg})
}

// Subscribe registers handler under a fresh subscription id. Handlers run
// on the read loop and must not block.
func (s *session) Subscribe(_ context.Context, topic, msgType string, handler robot.MessageHandler) (string, error) {
	if err := validTopic(topic); err != nil {
		return "", err
	}
	id := s.nextID(opSubscribe, topic)

	s.mu.Lock()
	if s.handlers[topic] == nil {
		s.handlers[topic] = make(map[string]robot.MessageHandler)
	}
	s.handlers[topic][id] = handler
	s.mu.Unlock()

	if err := s.write(topicFrame{Op: opSubscribe, ID: id, Topic: topic, Type: msgType}); err != nil {
		s.removeHandler(topic, id)
		return "", err
	}
	return id, nil
}

func (s *session) Unsubscribe(_ context.Context, topic, id string) error {
	s.removeHandler(topic, id)
	return s.write(topicFrame{Op: opUnsubscribe, ID: id, Topic: topic})
}

func (s *session) removeHandler(topic, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers[topic], id)
	if len(s.handlers[topic]) == 0 {
		delete(s.handlers, topic)
	}
}

func (s *session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Close sends a close frame and tears the session down. Safe to call more
// than once.
func (s *session) Close() error {
	s.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best-effort close frame
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	s.shutdown(nil)
	return nil
}

func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// shutdown closes the socket and marks the session done exactly once.
func (s *session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()
		s.conn.Close()
		close(s.done)
	})
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = fmt.Errorf("%w: closed by broker", ErrClosed)
				}
				s.shutdown(err)
			}
			return
		}
		s.dispatch(data)
	}
}

func (s *session) dispatch(data []byte) {
	var f inbound
	if err := json.Unmarshal(data, &f); err != nil {
		s.reportError(fmt.Errorf("decoding frame: %w", err))
		return
	}

	switch f.Op {
	case opPublish:
		s.mu.Lock()
		handlers := make([]robot.MessageHandler, 0, len(s.handlers[f.Topic]))
		for _, h := range s.handlers[f.Topic] {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()
		for _, h := range handlers {
			h(f.Msg)
		}

	case opServiceResponse:
		s.mu.Lock()
		reply, ok := s.pending[f.ID]
		s.mu.Unlock()
		if !ok {
			return
		}
		r := serviceResponse{values: f.Values, ok: f.Result == nil || *f.Result}
		select {
		case reply <- r:
		default:
		}

	case opStatus:
		var text string
		if err := json.Unmarshal(f.Msg, &text); err != nil {
			text = string(f.Msg)
		}
		if f.Level == "error" || f.Level == "warning" {
			s.reportError(fmt.Errorf("rosbridge %s: %s", f.Level, text))
		}

	default:
		if s.logger != nil {
			s.logger.Debug("ignoring rosbridge frame", "op", f.Op)
		}
	}
}

func (s *session) reportError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	if s.logger != nil {
		s.logger.Warn("rosbridge error", "error", err)
	}
}

var _ robot.Dialer = (*Dialer)(nil)
