package tour

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// tourFile is the YAML import format.
type tourFile struct {
	Title           string    `yaml:"title"`
	Description     string    `yaml:"description"`
	Language        string    `yaml:"language"`
	GroupAvgAge     int       `yaml:"group_avg_age"`
	MaxGroupSize    int       `yaml:"max_group_size"`
	Start           time.Time `yaml:"start"`
	End             time.Time `yaml:"end"`
	DurationMinutes int       `yaml:"duration_minutes"`
	AllDay          bool      `yaml:"all_day"`
	POIs            []POI     `yaml:"pois"`
}

// Decode reads one tour from YAML, then normalises and validates it.
// Unknown fields are rejected so typos do not silently drop data.
func Decode(r io.Reader) (*Tour, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f tourFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decoding yaml: %w", ErrInvalidTour, err)
	}

	t := &Tour{
		Title:           f.Title,
		Description:     f.Description,
		Language:        f.Language,
		GroupAvgAge:     f.GroupAvgAge,
		MaxGroupSize:    f.MaxGroupSize,
		Start:           f.Start,
		End:             f.End,
		DurationMinutes: f.DurationMinutes,
		AllDay:          f.AllDay,
		POIs:            f.POIs,
	}
	Normalise(t)
	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile decodes a tour YAML file.
func LoadFile(path string) (*Tour, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tour file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}
