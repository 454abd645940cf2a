package tour

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxTitleLength = 200
	maxPOIs        = 50
)

// poiKey returns the default key for the n-th POI (1-based).
func poiKey(n int) string {
	return fmt.Sprintf("POI_%d", n)
}

// Normalise fills derived fields: default POI keys, the end time from the
// duration, and the audio-generated flag.
func Normalise(t *Tour) {
	t.Title = strings.TrimSpace(t.Title)
	for i := range t.POIs {
		if t.POIs[i].Key == "" {
			t.POIs[i].Key = poiKey(i + 1)
		}
		if t.POIs[i].Pose.OrientationZ == 0 && t.POIs[i].Pose.OrientationW == 0 {
			t.POIs[i].Pose.OrientationW = 1
		}
	}
	if t.End.IsZero() && !t.Start.IsZero() && t.DurationMinutes > 0 {
		t.End = t.Start.Add(time.Duration(t.DurationMinutes) * time.Minute)
	}
	if t.DurationMinutes == 0 && t.End.After(t.Start) {
		t.DurationMinutes = int(t.End.Sub(t.Start).Minutes())
	}
	t.AudioGenerated = t.audioComplete()
}

// Validate checks a normalised tour.
func Validate(t *Tour) error {
	var errs []string

	if t.Title == "" {
		errs = append(errs, "title is required")
	} else if len(t.Title) > maxTitleLength {
		errs = append(errs, fmt.Sprintf("title exceeds %d characters", maxTitleLength))
	}
	if strings.TrimSpace(t.Language) == "" {
		errs = append(errs, "language is required")
	}
	if t.Start.IsZero() {
		errs = append(errs, "start is required")
	}
	if !t.End.After(t.Start) {
		errs = append(errs, "end must be after start")
	}
	if t.GroupAvgAge < 0 || t.MaxGroupSize < 0 {
		errs = append(errs, "group figures must not be negative")
	}

	switch {
	case len(t.POIs) == 0:
		errs = append(errs, "at least one point of interest is required")
	case len(t.POIs) > maxPOIs:
		errs = append(errs, fmt.Sprintf("at most %d points of interest", maxPOIs))
	}

	seen := make(map[string]bool, len(t.POIs))
	for i, p := range t.POIs {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Sprintf("pois[%d].name is required", i))
		}
		if seen[p.Key] {
			errs = append(errs, fmt.Sprintf("pois[%d].key %q is duplicated", i, p.Key))
		}
		seen[p.Key] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTour, strings.Join(errs, "; "))
	}
	return nil
}
