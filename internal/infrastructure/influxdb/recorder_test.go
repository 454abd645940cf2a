package influxdb

import (
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
)

type capturedWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (w *capturedWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

var fixedTime = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestRecorder() (*Recorder, *capturedWriter) {
	w := &capturedWriter{}
	return &Recorder{w: w, site: "museum-001", now: func() time.Time { return fixedTime }}, w
}

func tagsOf(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRecordStatus(t *testing.T) {
	rec, w := newTestRecorder()
	rec.RecordStatus("navigating")

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementStatus {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementStatus)
	}
	if tagsOf(p)["site"] != "museum-001" {
		t.Errorf("site tag = %q", tagsOf(p)["site"])
	}
	if fieldsOf(p)["status"] != "navigating" {
		t.Errorf("status field = %v", fieldsOf(p)["status"])
	}
	if !p.Time().Equal(fixedTime) {
		t.Errorf("Time() = %v, want %v", p.Time(), fixedTime)
	}
}

func TestRecordPose(t *testing.T) {
	rec, w := newTestRecorder()
	rec.RecordPose(robot.PoseSample{X: 23.5, Y: 45.2, Z: 0.707, W: 0.707})

	p := w.points[0]
	if p.Name() != MeasurementPose {
		t.Errorf("Name() = %q", p.Name())
	}
	fields := fieldsOf(p)
	for key, want := range map[string]float64{"x": 23.5, "y": 45.2, "z": 0.707, "w": 0.707} {
		if fields[key] != want {
			t.Errorf("field %s = %v, want %v", key, fields[key], want)
		}
	}
}

func TestRecordStream(t *testing.T) {
	rec, w := newTestRecorder()
	rec.RecordStream(robot.StreamReport{
		SessionID:    "abc",
		FileName:     "pyramid.wav",
		ChunkSize:    16384,
		TotalBytes:   40000,
		ChunksSent:   3,
		Acknowledged: true,
		Duration:     1500 * time.Millisecond,
	})

	p := w.points[0]
	if p.Name() != MeasurementStream {
		t.Errorf("Name() = %q", p.Name())
	}
	tags := tagsOf(p)
	if tags["file"] != "pyramid.wav" || tags["acknowledged"] != "true" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldsOf(p)
	if fields["bytes"] != int64(40000) || fields["chunks"] != int64(3) || fields["duration_ms"] != int64(1500) {
		t.Errorf("fields = %v", fields)
	}
}

func TestRecorder_SkipsWhenDisconnected(t *testing.T) {
	rec, w := newTestRecorder()
	rec.client = &Client{}

	rec.RecordStatus("ready")
	if len(w.points) != 0 {
		t.Errorf("points = %d, want 0 while disconnected", len(w.points))
	}
}
