// Package robot implements the controller for the tour-guide robot's broker
// connection.
//
// A single Connection owns the transport session to the robot middleware
// broker. After every successful transport connect it authenticates and
// verifies the credentials by probing the broker; an unexpected close hands
// control to a bounded reconnect supervisor. On top of the connection sit
// the AudioStreamer (chunked narration upload with metadata, end marker and
// save acknowledgement), the TelemetryRelay (status and pose fan-out to the
// dashboard) and the TourStarter (audio delivery followed by the start
// signal and its confirmation).
//
// Transport specifics live behind the Dialer and Session interfaces so the
// controller can run over rosbridge, MQTT, or an in-memory fake in tests.
package robot
