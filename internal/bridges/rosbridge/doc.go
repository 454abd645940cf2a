// Package rosbridge implements robot.Dialer over the rosbridge v2 JSON
// protocol on a websocket.
//
// One websocket carries every operation. Outbound frames are serialised by
// a write lock; a single read loop dispatches inbound publishes to topic
// handlers, matches service responses to pending calls, and reports status
// frames to the session's error callback.
package rosbridge
