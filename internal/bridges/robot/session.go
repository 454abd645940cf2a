package robot

import (
	"context"
	"encoding/json"
)

// Credentials is the fixed-shape payload of the broker's authentication
// primitive.
type Credentials struct {
	MAC    string
	Client string
	Dest   string
	Rand   string
	Time   int64
	Level  string
	End    int64
}

// MessageHandler receives the raw JSON body of each message delivered on a
// subscribed channel.
type MessageHandler func(msg json.RawMessage)

// Dialer opens transport sessions to the broker.
//
// Dial must return only once the connection is actually established, or
// with an error. The context bounds the dial itself, not the session.
type Dialer interface {
	Dial(ctx context.Context, url string) (Session, error)
}

// Session is one established transport connection.
//
// Done is closed exactly once when the connection goes away for any reason,
// including Close; Err then reports the cause. Errors reported through the
// OnError callback do not end the session.
type Session interface {
	Authenticate(ctx context.Context, creds Credentials) error
	Topics(ctx context.Context) ([]string, error)

	Advertise(ctx context.Context, topic, msgType string) error
	Unadvertise(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, msg any) error

	// Subscribe registers handler for topic and returns an identifier
	// used to unsubscribe exactly this registration.
	Subscribe(ctx context.Context, topic, msgType string, handler MessageHandler) (string, error)
	Unsubscribe(ctx context.Context, topic, id string) error

	OnError(fn func(err error))
	Close() error
	Done() <-chan struct{}
	Err() error
}

// Subscription is a handle to one channel subscription. It stays bound to the
// session it was created on, so releasing it after a reconnect cannot touch
// the new session.
type Subscription struct {
	Topic string
	ID    string

	session Session
}

// Advertisement is a handle to an outbound channel.
type Advertisement struct {
	Topic string
	Type  string

	session Session
}
