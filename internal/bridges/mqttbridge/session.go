// Package mqttbridge reaches the robot through an MQTT bridge instead of
// rosbridge. Each ROS topic is carried on <prefix>/<topic> with the same
// JSON message bodies rosbridge would use.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/mqtt"
)

// ErrInvalidTopic is returned for topic names that are not absolute ROS names.
var ErrInvalidTopic = errors.New("mqttbridge: invalid topic")

// Client is the part of *mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Subscriptions() []string
	Topics() mqtt.Topics
	IsConnected() bool
	Close() error
	Done() <-chan struct{}
	Err() error
}

// ConnectFunc opens one broker session.
type ConnectFunc func(ctx context.Context) (Client, error)

// Dialer implements robot.Dialer over MQTT.
type Dialer struct {
	connect ConnectFunc
	qos     byte
}

// NewDialer returns a Dialer connecting with cfg. Each Dial opens a fresh
// client; a lost connection is never resumed.
func NewDialer(cfg config.MQTTConfig, logger mqtt.Logger) *Dialer {
	return NewDialerFunc(func(ctx context.Context) (Client, error) {
		c, err := mqtt.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			c.SetLogger(logger)
		}
		return c, nil
	}, byte(cfg.QoS))
}

// NewDialerFunc returns a Dialer using connect to open sessions.
func NewDialerFunc(connect ConnectFunc, qos byte) *Dialer {
	return &Dialer{connect: connect, qos: qos}
}

// Dial opens a session. The broker address comes from configuration, so
// url is only used in error messages.
func (d *Dialer) Dial(ctx context.Context, url string) (robot.Session, error) {
	c, err := d.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &session{
		client:   c,
		topics:   c.Topics(),
		qos:      d.qos,
		handlers: make(map[string]map[string]robot.MessageHandler),
	}, nil
}

type session struct {
	client Client
	topics mqtt.Topics
	qos    byte
	seq    atomic.Uint64

	// brokerMu orders SUBSCRIBE and UNSUBSCRIBE round trips.
	brokerMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[string]robot.MessageHandler // topic -> subscription id -> handler
	onError  func(error)
}

func validTopic(topic string) error {
	if topic == "" || !strings.HasPrefix(topic, "/") || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

func (s *session) live() error {
	if !s.client.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

// Authenticate succeeds once the session is up: MQTT brokers authenticate
// clients at CONNECT with the configured username and password.
func (s *session) Authenticate(_ context.Context, _ robot.Credentials) error {
	return s.live()
}

// Topics lists the ROS topics this session currently subscribes to.
func (s *session) Topics(_ context.Context) ([]string, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	var out []string
	for _, t := range s.client.Subscriptions() {
		if name := s.topics.ChannelOf(t); name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}

// Advertise has no MQTT counterpart beyond checking the topic name.
func (s *session) Advertise(_ context.Context, topic, _ string) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	return s.live()
}

func (s *session) Unadvertise(_ context.Context, topic string) error {
	return validTopic(topic)
}

func (s *session) Publish(_ context.Context, topic string, msg any) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", topic, err)
	}
	return s.client.Publish(s.topics.Channel(topic), payload, s.qos, false)
}

func (s *session) Subscribe(_ context.Context, topic, _ string, handler robot.MessageHandler) (string, error) {
	if err := validTopic(topic); err != nil {
		return "", err
	}
	id := fmt.Sprintf("subscribe:%s:%d", topic, s.seq.Add(1))

	s.brokerMu.Lock()
	defer s.brokerMu.Unlock()

	// The handler is registered before SUBSCRIBE goes out so messages that
	// arrive ahead of the SUBACK are routed to it.
	s.mu.Lock()
	subs, ok := s.handlers[topic]
	if !ok {
		subs = make(map[string]robot.MessageHandler)
		s.handlers[topic] = subs
	}
	subs[id] = handler
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	// s.mu must not be held here: route takes it from paho's ordered
	// message handler, which would stall the SUBACK.
	if err := s.client.Subscribe(s.topics.Channel(topic), s.qos, s.route(topic)); err != nil {
		s.mu.Lock()
		delete(s.handlers, topic)
		s.mu.Unlock()
		return "", err
	}
	return id, nil
}

func (s *session) Unsubscribe(_ context.Context, topic, id string) error {
	s.brokerMu.Lock()
	defer s.brokerMu.Unlock()

	s.mu.Lock()
	subs, ok := s.handlers[topic]
	if ok {
		delete(subs, id)
	}
	last := ok && len(subs) == 0
	if last {
		delete(s.handlers, topic)
	}
	s.mu.Unlock()

	if !last {
		return nil
	}
	return s.client.Unsubscribe(s.topics.Channel(topic))
}

// route fans one broker subscription out to every handler on topic.
func (s *session) route(topic string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		if !json.Valid(payload) {
			err := fmt.Errorf("%s: payload is not JSON", topic)
			s.reportError(err)
			return err
		}

		s.mu.Lock()
		handlers := make([]robot.MessageHandler, 0, len(s.handlers[topic]))
		for _, h := range s.handlers[topic] {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()

		for _, h := range handlers {
			h(json.RawMessage(payload))
		}
		return nil
	}
}

func (s *session) OnError(fn func(err error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *session) reportError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *session) Close() error { return s.client.Close() }

func (s *session) Done() <-chan struct{} { return s.client.Done() }

func (s *session) Err() error { return s.client.Err() }

var _ robot.Dialer = (*Dialer)(nil)
