// Package config loads the controller configuration from YAML, applies
// TOURGUIDE_* environment overrides and validates the result.
//
// Secrets (broker MAC, MQTT password, InfluxDB token, JWT secret) are
// expected to come from the environment rather than the file:
//
//	TOURGUIDE_BROKER_MAC=... TOURGUIDE_JWT_SECRET=... tourguide serve -c configs/config.yaml
//
// Broker.Transport selects the robot link: "rosbridge" dials Broker.URL,
// "mqtt" uses the MQTT section instead.
package config
