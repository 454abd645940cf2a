package tour

import "errors"

var (
	// ErrTourNotFound is returned when a tour ID does not exist.
	ErrTourNotFound = errors.New("tour not found")

	// ErrPOINotFound is returned when a POI key does not exist on the tour.
	ErrPOINotFound = errors.New("point of interest not found")

	// ErrInvalidTour is returned when a tour fails validation.
	ErrInvalidTour = errors.New("invalid tour")

	// ErrAudioMissing is returned when a POI has no narration assigned.
	ErrAudioMissing = errors.New("poi has no audio")

	// ErrInvalidAudioPath is returned for audio references that escape the
	// audio directory or do not name a regular file.
	ErrInvalidAudioPath = errors.New("invalid audio path")
)
