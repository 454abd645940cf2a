// Package tour stores museum tours and their ordered points of interest.
//
// A tour is a scheduled group visit. Each point of interest (POI) carries
// the pose the robot drives to and a reference to the narration audio
// played there. The audio references are relative to the configured audio
// directory and are resolved by AudioLibrary before streaming.
//
// Tours are persisted in SQLite (tables tours and tour_pois) and can be
// imported from YAML files:
//
//	title: "Pharaohs for families"
//	language: en
//	start: 2026-11-02T10:00:00Z
//	duration_minutes: 45
//	pois:
//	  - name: Great Pyramid Exhibition Hall
//	    pose: {x: 23.5, y: 45.2, z: 0.707, w: 0.707}
//	    audio: en/pyramid.wav
package tour
