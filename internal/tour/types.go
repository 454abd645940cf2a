package tour

import (
	"fmt"
	"time"
)

// Pose is a 2D map position with a yaw quaternion, matching what the
// robot's navigation stack accepts as a goal.
type Pose struct {
	X            float64 `json:"x" yaml:"x"`
	Y            float64 `json:"y" yaml:"y"`
	OrientationZ float64 `json:"z" yaml:"z"`
	OrientationW float64 `json:"w" yaml:"w"`
}

// POI is one stop on a tour.
type POI struct {
	// Key is unique within the tour, e.g. "POI_1".
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Pose        Pose   `json:"pose" yaml:"pose"`

	// AudioFile is relative to the audio directory. Empty until narration
	// has been generated.
	AudioFile string `json:"audio_file,omitempty" yaml:"audio"`
}

// Tour is a scheduled guided visit.
type Tour struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	GroupAvgAge     int       `json:"group_avg_age"`
	MaxGroupSize    int       `json:"max_group_size"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	AllDay          bool      `json:"all_day"`
	AudioGenerated  bool      `json:"audio_generated"`
	CreatedBy       string    `json:"created_by,omitempty"`
	POIs            []POI     `json:"pois"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AudioRefs returns the POI audio references in tour order.
func (t *Tour) AudioRefs() ([]string, error) {
	refs := make([]string, 0, len(t.POIs))
	for _, p := range t.POIs {
		if p.AudioFile == "" {
			return nil, fmt.Errorf("%w: %s", ErrAudioMissing, p.Key)
		}
		refs = append(refs, p.AudioFile)
	}
	return refs, nil
}

// POI returns the point of interest with the given key.
func (t *Tour) POI(key string) (*POI, bool) {
	for i := range t.POIs {
		if t.POIs[i].Key == key {
			return &t.POIs[i], true
		}
	}
	return nil, false
}

// audioComplete reports whether every POI has narration.
func (t *Tour) audioComplete() bool {
	if len(t.POIs) == 0 {
		return false
	}
	for _, p := range t.POIs {
		if p.AudioFile == "" {
			return false
		}
	}
	return true
}
