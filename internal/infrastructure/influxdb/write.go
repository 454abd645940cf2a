package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
)

// Measurement names.
const (
	MeasurementStatus = "robot_status"
	MeasurementPose   = "robot_pose"
	MeasurementStream = "audio_stream"
)

// pointWriter is the subset of api.WriteAPI the recorder uses.
type pointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder writes robot telemetry as InfluxDB points. It implements
// robot.Recorder; every method returns immediately.
type Recorder struct {
	client *Client
	w      pointWriter
	site   string
	now    func() time.Time
}

var _ robot.Recorder = (*Recorder)(nil)

// NewRecorder returns a recorder that tags every point with site.
func NewRecorder(c *Client, site string) *Recorder {
	return &Recorder{client: c, w: c.writeAPI, site: site, now: time.Now}
}

func (r *Recorder) write(measurement string, tags map[string]string, fields map[string]interface{}) {
	if r.client != nil && !r.client.IsConnected() {
		return
	}
	tags["site"] = r.site
	r.w.WritePoint(write.NewPoint(measurement, tags, fields, r.now()))
}

// RecordStatus records a robot status change.
func (r *Recorder) RecordStatus(status string) {
	r.write(MeasurementStatus,
		map[string]string{},
		map[string]interface{}{"status": status},
	)
}

// RecordPose records an amcl pose sample.
func (r *Recorder) RecordPose(pose robot.PoseSample) {
	r.write(MeasurementPose,
		map[string]string{},
		map[string]interface{}{
			"x": pose.X,
			"y": pose.Y,
			"z": pose.Z,
			"w": pose.W,
		},
	)
}

// RecordStream records a finished audio upload.
func (r *Recorder) RecordStream(report robot.StreamReport) {
	r.write(MeasurementStream,
		map[string]string{
			"file":         report.FileName,
			"acknowledged": boolTag(report.Acknowledged),
		},
		map[string]interface{}{
			"session_id":  report.SessionID,
			"bytes":       report.TotalBytes,
			"chunks":      report.ChunksSent,
			"chunk_size":  report.ChunkSize,
			"duration_ms": report.Duration.Milliseconds(),
		},
	)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
