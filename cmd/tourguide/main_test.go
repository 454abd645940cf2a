package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/auth"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/logging"
	"github.com/museum-robotics/tourguide-core/internal/tour"
)

const testSecret = "test-secret-for-development-only-32+"

type testEnv struct {
	configPath string
	audioDir   string
}

// newTestEnv writes a config with a temporary database and audio directory.
// The broker URL points at a closed port.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	audioDir := filepath.Join(dir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := fmt.Sprintf(`
site:
  id: test-site
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
broker:
  transport: rosbridge
  url: ws://127.0.0.1:1
  connect_timeout: 200ms
  verify_timeout: 200ms
  reconnect_interval: 1s
  max_reconnect_attempts: 1
audio:
  dir: %q
logging:
  level: error
  format: text
security:
  jwt:
    secret: %q
`, filepath.Join(dir, "data", "tourguide.db"), audioDir, testSecret)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return &testEnv{configPath: path, audioDir: audioDir}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCLI(t, append([]string{"--config", e.configPath}, args...)...)
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func (e *testEnv) importTour(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tour.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := e.run(t, "tour", "import", path)
	if err != nil {
		t.Fatalf("tour import error = %v", err)
	}
	var id string
	if _, err := fmt.Sscanf(out, "Imported tour %s", &id); err != nil {
		t.Fatalf("unexpected import output %q", out)
	}
	return id
}

const egyptTour = `title: Ancient Egypt
language: en
start: 2026-11-02T10:00:00Z
duration_minutes: 45
pois:
  - name: Great Pyramid
    pose: {x: 1.5, y: -2, z: 0.7, w: 0.7}
  - name: Rosetta Stone
`

func TestVersion(t *testing.T) {
	out, err := executeCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "tourguide dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := executeCLI(t, "--config", "/nonexistent/path/config.yaml", "tour", "list")
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("tour list error = %v, want loading config error", err)
	}
}

func TestConfigPath_FromEnvironment(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("TOURGUIDE_CONFIG", env.configPath)

	out, err := executeCLI(t, "tour", "list")
	if err != nil {
		t.Fatalf("tour list error = %v", err)
	}
	if !strings.HasPrefix(out, "ID") {
		t.Errorf("tour list output = %q, want table header", out)
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("site:\n  id: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := executeCLI(t, "--config", path, "serve")
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Fatalf("serve error = %v, want jwt secret validation error", err)
	}
}

// TestServe_StartsAndStops runs the full wiring with an unreachable robot
// and checks that cancellation shuts everything down cleanly.
func TestServe_StartsAndStops(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, logging.Discard()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve() did not return after cancellation")
	}

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestToken(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "token", "--subject", "op-7", "--role", "robotOperator", "--control")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "op-7" || claims.Role != auth.RoleRobotOperator || !claims.HasControl {
		t.Errorf("claims = %+v", claims)
	}
	if err := claims.CanControlRobot(); err != nil {
		t.Errorf("CanControlRobot() error = %v", err)
	}
}

func TestToken_Rejects(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "token", "--subject", "op-7", "--role", "curator")
	if !errors.Is(err, auth.ErrInvalidRole) {
		t.Errorf("token --role curator error = %v, want ErrInvalidRole", err)
	}

	_, err = env.run(t, "token")
	if err == nil || !strings.Contains(err.Error(), `required flag(s) "subject" not set`) {
		t.Errorf("token without subject error = %v", err)
	}
}

func TestTourImportListShow(t *testing.T) {
	env := newTestEnv(t)
	id := env.importTour(t, egyptTour)

	out, err := env.run(t, "tour", "list", "--json")
	if err != nil {
		t.Fatalf("tour list error = %v", err)
	}
	var tours []tour.Tour
	if err := json.Unmarshal([]byte(out), &tours); err != nil {
		t.Fatalf("decoding list output: %v", err)
	}
	if len(tours) != 1 || tours[0].ID != id || len(tours[0].POIs) != 2 {
		t.Fatalf("tour list = %+v", tours)
	}

	out, err = env.run(t, "tour", "show", id)
	if err != nil {
		t.Fatalf("tour show error = %v", err)
	}
	var got tour.Tour
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding show output: %v", err)
	}
	if got.Title != "Ancient Egypt" || got.DurationMinutes != 45 {
		t.Errorf("tour show = %+v", got)
	}
	if got.POIs[0].Key != "POI_1" || got.POIs[0].Pose.X != 1.5 {
		t.Errorf("first POI = %+v", got.POIs[0])
	}
	if got.AudioGenerated {
		t.Error("AudioGenerated = true for tour without narration")
	}
}

func TestTourShow_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "tour", "show", "missing")
	if !errors.Is(err, tour.ErrTourNotFound) {
		t.Errorf("tour show error = %v, want ErrTourNotFound", err)
	}
}

func TestTourImport_CheckAudio(t *testing.T) {
	env := newTestEnv(t)
	doc := "title: T\nlanguage: en\nstart: 2026-11-02T10:00:00Z\nduration_minutes: 5\npois:\n  - name: A\n    audio: en/missing.wav\n"
	path := filepath.Join(t.TempDir(), "tour.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := env.run(t, "tour", "import", "--check-audio", path)
	if !errors.Is(err, tour.ErrInvalidAudioPath) {
		t.Fatalf("tour import --check-audio error = %v, want ErrInvalidAudioPath", err)
	}

	out, err := env.run(t, "tour", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "null" {
		t.Errorf("tour list after rejected import = %s, want no tours", out)
	}
}

func TestTourSetAudioAndDelete(t *testing.T) {
	env := newTestEnv(t)
	id := env.importTour(t, egyptTour)

	if _, err := env.run(t, "tour", "set-audio", id, "POI_1", "../outside.wav"); !errors.Is(err, tour.ErrInvalidAudioPath) {
		t.Errorf("set-audio outside library error = %v, want ErrInvalidAudioPath", err)
	}

	for i, name := range []string{"pyramid.wav", "rosetta.wav"} {
		if err := os.WriteFile(filepath.Join(env.audioDir, name), []byte("RIFF"), 0o600); err != nil {
			t.Fatal(err)
		}
		key := fmt.Sprintf("POI_%d", i+1)
		if _, err := env.run(t, "tour", "set-audio", id, key, name); err != nil {
			t.Fatalf("set-audio %s error = %v", key, err)
		}
	}

	if _, err := env.run(t, "tour", "set-audio", id, "POI_9", "pyramid.wav"); !errors.Is(err, tour.ErrPOINotFound) {
		t.Errorf("set-audio unknown POI error = %v, want ErrPOINotFound", err)
	}

	out, err := env.run(t, "tour", "show", id)
	if err != nil {
		t.Fatal(err)
	}
	var got tour.Tour
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if !got.AudioGenerated || got.POIs[1].AudioFile != "rosetta.wav" {
		t.Errorf("tour after set-audio = %+v", got)
	}

	if _, err := env.run(t, "tour", "delete", id); err != nil {
		t.Fatalf("tour delete error = %v", err)
	}
	if _, err := env.run(t, "tour", "delete", id); !errors.Is(err, tour.ErrTourNotFound) {
		t.Errorf("second delete error = %v, want ErrTourNotFound", err)
	}
}

func TestTourStart_MissingAudio(t *testing.T) {
	env := newTestEnv(t)
	id := env.importTour(t, egyptTour)

	// Fails on the tour before any broker connection is attempted.
	_, err := env.run(t, "tour", "start", id)
	if !errors.Is(err, tour.ErrAudioMissing) {
		t.Errorf("tour start error = %v, want ErrAudioMissing", err)
	}
}

func TestTourStart_RobotUnreachable(t *testing.T) {
	env := newTestEnv(t)
	id := env.importTour(t, egyptTour)
	for i, name := range []string{"pyramid.wav", "rosetta.wav"} {
		if err := os.WriteFile(filepath.Join(env.audioDir, name), []byte("RIFF"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := env.run(t, "tour", "set-audio", id, fmt.Sprintf("POI_%d", i+1), name); err != nil {
			t.Fatal(err)
		}
	}

	_, err := env.run(t, "tour", "start", id)
	if err == nil || !strings.Contains(err.Error(), "connecting to robot") {
		t.Errorf("tour start error = %v, want connect failure", err)
	}
}

func TestStream_Args(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.run(t, "stream"); err == nil {
		t.Error("stream without files succeeded")
	}
	if _, err := env.run(t, "stream", filepath.Join(env.audioDir, "missing.wav")); err == nil || !strings.Contains(err.Error(), "audio file") {
		t.Errorf("stream missing file error = %v", err)
	}
	if _, err := env.run(t, "stream", env.audioDir); err == nil || !strings.Contains(err.Error(), "not a regular file") {
		t.Errorf("stream directory error = %v", err)
	}
}

func TestDB_MigrateStatusRollback(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "db", "status")
	if err != nil {
		t.Fatalf("db status error = %v", err)
	}
	if strings.Count(out, "pending") != 2 {
		t.Errorf("fresh db status = %q, want 2 pending migrations", out)
	}

	if _, err := env.run(t, "db", "migrate"); err != nil {
		t.Fatalf("db migrate error = %v", err)
	}
	out, err = env.run(t, "db", "status")
	if err != nil {
		t.Fatalf("db status error = %v", err)
	}
	if strings.Count(out, "applied") != 2 || strings.Contains(out, "pending") {
		t.Errorf("migrated db status = %q, want 2 applied", out)
	}

	if _, err := env.run(t, "db", "rollback"); err != nil {
		t.Fatalf("db rollback error = %v", err)
	}
	out, err = env.run(t, "db", "status")
	if err != nil {
		t.Fatalf("db status error = %v", err)
	}
	if !strings.Contains(out, "pending") || !strings.Contains(out, "create_robot_audit") {
		t.Errorf("status after rollback = %q, want create_robot_audit pending", out)
	}
}
