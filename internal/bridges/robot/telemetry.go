package robot

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Envelope types sent to dashboards.
const (
	EnvelopeRobotStatus = "robot_status"
	EnvelopeAmclPose    = "amcl_pose"
)

// Broadcaster delivers a tagged envelope to every open dashboard client.
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

// Recorder keeps telemetry history. Implementations must not block.
type Recorder interface {
	RecordStatus(status string)
	RecordPose(pose PoseSample)
	RecordStream(report StreamReport)
}

// Telemetry is the last-known robot state.
type Telemetry struct {
	Status    string      `json:"status"`
	Pose      *PoseSample `json:"pose,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}

// TelemetryRelay subscribes to the robot's status and pose channels after
// every successful authentication and forwards each message to dashboards.
// It keeps only the latest value of each.
type TelemetryRelay struct {
	conn     *Connection
	out      Broadcaster
	recorder Recorder
	logger   Logger
	now      func() time.Time

	mu    sync.RWMutex
	state Telemetry
}

// NewTelemetryRelay creates a relay and registers it with conn. recorder may
// be nil.
func NewTelemetryRelay(conn *Connection, out Broadcaster, recorder Recorder, logger Logger) *TelemetryRelay {
	r := &TelemetryRelay{
		conn:     conn,
		out:      out,
		recorder: recorder,
		logger:   loggerOrNop(logger),
		now:      conn.clock.Now,
		state:    Telemetry{Status: InitialRobotState},
	}
	conn.OnAuthenticated(r.subscribe)
	return r
}

// subscribe runs on every authentication. The handles are not kept: they
// belong to the session and end with it.
func (r *TelemetryRelay) subscribe(ctx context.Context) {
	if _, err := r.conn.Subscribe(ctx, TopicRobotStatus, TypeString, r.handleStatus); err != nil {
		r.logger.Error("subscribing to robot status failed", "error", err)
	}
	if _, err := r.conn.Subscribe(ctx, TopicAmclPose, TypePoseCovStamped, r.handlePose); err != nil {
		r.logger.Error("subscribing to robot pose failed", "error", err)
	}
	r.logger.Debug("telemetry relay subscribed", "topics", []string{TopicRobotStatus, TopicAmclPose})
}

func (r *TelemetryRelay) handleStatus(raw json.RawMessage) {
	status, err := decodeString(raw)
	if err != nil {
		r.logger.Warn("discarding malformed robot status", "error", err)
		return
	}

	r.mu.Lock()
	r.state.Status = status
	r.state.UpdatedAt = r.now()
	r.mu.Unlock()

	r.out.Broadcast(EnvelopeRobotStatus, status)
	if r.recorder != nil {
		r.recorder.RecordStatus(status)
	}
}

func (r *TelemetryRelay) handlePose(raw json.RawMessage) {
	var msg PoseWithCovarianceStamped
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Warn("discarding malformed robot pose", "error", err)
		return
	}
	pose := poseSampleFrom(msg)

	r.mu.Lock()
	r.state.Pose = &pose
	r.state.UpdatedAt = r.now()
	r.mu.Unlock()

	r.out.Broadcast(EnvelopeAmclPose, pose)
	if r.recorder != nil {
		r.recorder.RecordPose(pose)
	}
}

// Snapshot returns the last-known status and pose.
func (r *TelemetryRelay) Snapshot() Telemetry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := r.state
	if t.Pose != nil {
		p := *t.Pose
		t.Pose = &p
	}
	return t
}
