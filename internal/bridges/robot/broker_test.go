package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/clock"
)

var (
	errSessionClosed = errors.New("fake: session closed")
	errDropped       = errors.New("fake: connection dropped")
)

var testEpoch = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// op is one call recorded by a fakeSession.
type op struct {
	kind  string // auth, topics, advertise, unadvertise, publish, subscribe, unsubscribe
	topic string
	msg   any
}

// fakeBroker is an in-memory Dialer. Hooks let tests play the robot.
type fakeBroker struct {
	mu        sync.Mutex
	dials     int
	dialErr   error
	authErr   error
	topicsErr error
	topics    []string
	blockDial chan struct{}
	sessions  []*fakeSession

	// onPublish runs after a publish is recorded, outside any lock.
	onPublish func(s *fakeSession, topic string, msg any)
	// publishErr fails selected publishes.
	publishErr func(topic string, msg any) error
	// unadvertiseErr fails unadvertise of selected topics.
	unadvertiseErr map[string]error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{topics: []string{TopicRobotStatus, TopicAmclPose}}
}

func (b *fakeBroker) Dial(_ context.Context, _ string) (Session, error) {
	b.mu.Lock()
	b.dials++
	block, dialErr := b.blockDial, b.dialErr
	b.mu.Unlock()

	if block != nil {
		<-block
	}
	if dialErr != nil {
		return nil, dialErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := &fakeSession{
		broker:    b,
		authErr:   b.authErr,
		topicsErr: b.topicsErr,
		subs:      make(map[string]map[string]MessageHandler),
		done:      make(chan struct{}),
	}
	b.sessions = append(b.sessions, s)
	return s, nil
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) session(i int) *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.sessions) {
		return nil
	}
	return b.sessions[i]
}

func (b *fakeBroker) latest() *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

func (b *fakeBroker) set(fn func(b *fakeBroker)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

type fakeSession struct {
	broker    *fakeBroker
	authErr   error
	topicsErr error

	mu      sync.Mutex
	ops     []op
	subs    map[string]map[string]MessageHandler
	nextID  int
	onError func(error)
	creds   Credentials

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func (s *fakeSession) record(kind, topic string, msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosedLocked() {
		return errSessionClosed
	}
	s.ops = append(s.ops, op{kind: kind, topic: topic, msg: msg})
	return nil
}

func (s *fakeSession) isClosedLocked() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *fakeSession) Authenticate(_ context.Context, creds Credentials) error {
	if err := s.record("auth", "", creds); err != nil {
		return err
	}
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return s.authErr
}

func (s *fakeSession) Topics(_ context.Context) ([]string, error) {
	if err := s.record("topics", "", nil); err != nil {
		return nil, err
	}
	if s.topicsErr != nil {
		return nil, s.topicsErr
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return append([]string(nil), s.broker.topics...), nil
}

func (s *fakeSession) Advertise(_ context.Context, topic, msgType string) error {
	return s.record("advertise", topic, msgType)
}

func (s *fakeSession) Unadvertise(_ context.Context, topic string) error {
	if err := s.record("unadvertise", topic, nil); err != nil {
		return err
	}
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.broker.unadvertiseErr[topic]
}

func (s *fakeSession) Publish(_ context.Context, topic string, msg any) error {
	s.broker.mu.Lock()
	failFn, hook := s.broker.publishErr, s.broker.onPublish
	s.broker.mu.Unlock()

	if failFn != nil {
		if err := failFn(topic, msg); err != nil {
			return err
		}
	}
	if err := s.record("publish", topic, msg); err != nil {
		return err
	}
	if hook != nil {
		hook(s, topic, msg)
	}
	return nil
}

func (s *fakeSession) Subscribe(_ context.Context, topic, msgType string, handler MessageHandler) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosedLocked() {
		return "", errSessionClosed
	}
	s.nextID++
	id := fmt.Sprintf("subscribe:%s:%d", topic, s.nextID)
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[string]MessageHandler)
	}
	s.subs[topic][id] = handler
	s.ops = append(s.ops, op{kind: "subscribe", topic: topic, msg: msgType})
	return id, nil
}

func (s *fakeSession) Unsubscribe(_ context.Context, topic, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosedLocked() {
		return errSessionClosed
	}
	delete(s.subs[topic], id)
	s.ops = append(s.ops, op{kind: "unsubscribe", topic: topic})
	return nil
}

func (s *fakeSession) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.end(nil)
	return nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// end closes the session with cause err.
func (s *fakeSession) end(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		close(s.done)
		s.mu.Unlock()
	})
}

func (s *fakeSession) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosedLocked()
}

// reportError invokes the registered transport error callback.
func (s *fakeSession) reportError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// deliver sends msg to every handler subscribed to topic.
func (s *fakeSession) deliver(t *testing.T, topic string, msg any) {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal %T: %v", msg, err)
	}

	s.mu.Lock()
	handlers := make([]MessageHandler, 0, len(s.subs[topic]))
	for _, h := range s.subs[topic] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(raw)
	}
}

// deliverRaw is deliver for hooks without a *testing.T.
func (s *fakeSession) deliverRaw(topic string, msg any) {
	raw, _ := json.Marshal(msg) //nolint:errcheck // test messages always marshal
	s.mu.Lock()
	handlers := make([]MessageHandler, 0, len(s.subs[topic]))
	for _, h := range s.subs[topic] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

func (s *fakeSession) subscriberCount(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[topic])
}

func (s *fakeSession) recorded() []op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]op(nil), s.ops...)
}

// filter returns recorded ops of kind on topic.
func (s *fakeSession) filter(kind, topic string) []op {
	var out []op
	for _, o := range s.recorded() {
		if o.kind == kind && o.topic == topic {
			out = append(out, o)
		}
	}
	return out
}

// autoAck plays a robot that acknowledges every end-of-stream marker.
func autoAck(s *fakeSession, topic string, msg any) {
	if topic != TopicAudioStream {
		return
	}
	if chunk, ok := msg.(UInt8MultiArray); ok && len(chunk.Data) == 0 {
		s.deliverRaw(TopicAudioSaveComplete, StringMsg{Data: AudioSavedValue})
	}
}

var testCreds = Credentials{MAC: "mac-secret", Client: "client", Dest: "dest", Rand: "rand", Level: "level"}

func newTestConnection(t *testing.T, b *fakeBroker, maxAttempts int) (*Connection, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(testEpoch)
	conn, err := NewConnection(Options{
		Dialer:               b,
		URL:                  "ws://robot.test:9090",
		Credentials:          testCreds,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: maxAttempts,
		Clock:                fake,
	})
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	t.Cleanup(func() { conn.Shutdown() }) //nolint:errcheck // test cleanup
	return conn, fake
}

// connectAuthenticated connects and waits for the handshake to finish.
func connectAuthenticated(t *testing.T, conn *Connection) {
	t.Helper()
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.WaitAuthenticated(ctx); err != nil {
		t.Fatalf("WaitAuthenticated() error = %v", err)
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// stillRunning reports whether ch has not yielded within a short real-time
// window.
func stillRunning[T any](ch <-chan T) bool {
	select {
	case <-ch:
		return false
	case <-time.After(20 * time.Millisecond):
		return true
	}
}

type broadcast struct {
	msgType string
	data    any
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *fakeBroadcaster) Broadcast(msgType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{msgType: msgType, data: data})
}

func (f *fakeBroadcaster) messages() []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast(nil), f.sent...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	statuses []string
	poses    []PoseSample
	streams  []StreamReport
}

func (r *fakeRecorder) RecordStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *fakeRecorder) RecordPose(p PoseSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poses = append(r.poses, p)
}

func (r *fakeRecorder) RecordStream(rep StreamReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, rep)
}
