package tour

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Tour)
		wantErr string
	}{
		{name: "valid", mutate: func(*Tour) {}},
		{name: "no title", mutate: func(tr *Tour) { tr.Title = "  " }, wantErr: "title"},
		{name: "no language", mutate: func(tr *Tour) { tr.Language = "" }, wantErr: "language"},
		{name: "no start", mutate: func(tr *Tour) { tr.Start = time.Time{}; tr.End = time.Time{} }, wantErr: "start"},
		{name: "end before start", mutate: func(tr *Tour) { tr.DurationMinutes = 0; tr.End = tr.Start.Add(-time.Hour) }, wantErr: "end must be after start"},
		{name: "no pois", mutate: func(tr *Tour) { tr.POIs = nil }, wantErr: "at least one"},
		{name: "unnamed poi", mutate: func(tr *Tour) { tr.POIs[1].Name = "" }, wantErr: "pois[1].name"},
		{name: "duplicate key", mutate: func(tr *Tour) { tr.POIs[1].Key = "POI_1" }, wantErr: "duplicated"},
		{name: "negative group", mutate: func(tr *Tour) { tr.MaxGroupSize = -1 }, wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tour := sampleTour()
			tt.mutate(tour)
			Normalise(tour)
			err := Validate(tour)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTour) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want ErrInvalidTour mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalise(t *testing.T) {
	tour := &Tour{
		Title: "  Trimmed  ",
		Start: time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 11, 2, 11, 30, 0, 0, time.UTC),
		POIs:  []POI{{Name: "A", AudioFile: "a.wav"}, {Key: "custom", Name: "B", AudioFile: "b.wav"}},
	}
	Normalise(tour)

	if tour.Title != "Trimmed" {
		t.Errorf("Title = %q", tour.Title)
	}
	if tour.DurationMinutes != 90 {
		t.Errorf("DurationMinutes = %d, want 90", tour.DurationMinutes)
	}
	if tour.POIs[0].Key != "POI_1" || tour.POIs[1].Key != "custom" {
		t.Errorf("keys = %s, %s", tour.POIs[0].Key, tour.POIs[1].Key)
	}
	if tour.POIs[0].Pose.OrientationW != 1 {
		t.Errorf("zero orientation not defaulted to identity: %+v", tour.POIs[0].Pose)
	}
	if !tour.AudioGenerated {
		t.Error("AudioGenerated = false with audio on every POI")
	}
}

func TestAudioRefs(t *testing.T) {
	tour := sampleTour()
	if _, err := tour.AudioRefs(); !errors.Is(err, ErrAudioMissing) {
		t.Errorf("AudioRefs() error = %v, want ErrAudioMissing", err)
	}
	tour.POIs[1].AudioFile = "en/sphinx.wav"
	refs, err := tour.AudioRefs()
	if err != nil {
		t.Fatalf("AudioRefs() error = %v", err)
	}
	if strings.Join(refs, ",") != "en/pyramid.wav,en/sphinx.wav" {
		t.Errorf("AudioRefs() = %v", refs)
	}
}

func TestAudioLibrary(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "en", "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"en/pyramid.wav", "en/sphinx.wav"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("RIFF"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	lib := NewAudioLibrary(root)

	got, err := lib.Resolve("en/pyramid.wav")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != filepath.Join(root, "en", "pyramid.wav") {
		t.Errorf("Resolve() = %q", got)
	}

	for _, ref := range []string{"", "../etc/passwd", "en/../../x.wav", "/etc/passwd", "en/missing.wav", "en/sub"} {
		if _, err := lib.Resolve(ref); !errors.Is(err, ErrInvalidAudioPath) {
			t.Errorf("Resolve(%q) error = %v, want ErrInvalidAudioPath", ref, err)
		}
	}

	tour := sampleTour()
	if _, err := lib.Paths(tour); !errors.Is(err, ErrAudioMissing) {
		t.Errorf("Paths() error = %v, want ErrAudioMissing", err)
	}
	tour.POIs[1].AudioFile = "en/sphinx.wav"
	paths, err := lib.Paths(tour)
	if err != nil {
		t.Fatalf("Paths() error = %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[1]) != "sphinx.wav" {
		t.Errorf("Paths() = %v", paths)
	}
}

func TestDecode(t *testing.T) {
	doc := `
title: Pharaohs for families
language: en
max_group_size: 15
start: 2026-11-02T10:00:00Z
duration_minutes: 45
pois:
  - name: Great Pyramid Exhibition Hall
    pose: {x: 23.5, y: 45.2, z: 0.707, w: 0.707}
    audio: en/pyramid.wav
  - key: sphinx
    name: Sphinx Gallery
    pose: {x: 15.8, y: 32.4, z: 0.866, w: 0.5}
`
	tour, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tour.Title != "Pharaohs for families" || tour.MaxGroupSize != 15 {
		t.Errorf("Decode() = %+v", tour)
	}
	if !tour.End.Equal(time.Date(2026, 11, 2, 10, 45, 0, 0, time.UTC)) {
		t.Errorf("End = %v", tour.End)
	}
	if len(tour.POIs) != 2 || tour.POIs[0].Key != "POI_1" || tour.POIs[1].Key != "sphinx" {
		t.Fatalf("POIs = %+v", tour.POIs)
	}
	if tour.POIs[0].AudioFile != "en/pyramid.wav" || tour.POIs[0].Pose.X != 23.5 {
		t.Errorf("POI_1 = %+v", tour.POIs[0])
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown field": "title: x\nlanguage: en\ncolour: red\n",
		"invalid tour":  "title: x\nlanguage: en\nstart: 2026-11-02T10:00:00Z\nduration_minutes: 10\n",
		"not yaml":      "title: [unterminated",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(doc)); !errors.Is(err, ErrInvalidTour) {
				t.Errorf("Decode() error = %v, want ErrInvalidTour", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tour.yaml")
	doc := "title: Quick look\nlanguage: de\nstart: 2026-11-02T10:00:00Z\nend: 2026-11-02T10:20:00Z\npois:\n  - name: Entrance\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	tour, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if tour.DurationMinutes != 20 || tour.Language != "de" {
		t.Errorf("LoadFile() = %+v", tour)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile(missing) succeeded")
	}
}
