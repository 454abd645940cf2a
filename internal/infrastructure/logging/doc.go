// Package logging builds the slog logger shared by every component.
//
// Entries carry service and version fields; components add their own with
// Component:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("reconnect").Warn("attempt failed", "attempt", 3)
//
// The broker MAC and bearer tokens must never be logged.
package logging
