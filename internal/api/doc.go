// Package api implements the HTTP API and dashboard WebSocket for the tour
// guide controller.
//
// This package provides:
//   - Robot endpoints: connection status, last telemetry, topic listing,
//     broker client count, manual reconnect, audio upload and tour start
//   - Read endpoints for tours and their points of interest
//   - The dashboard hub, which receives robot_status and amcl_pose
//     envelopes from the telemetry relay and accepts moveCommand messages
//   - Bearer token authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Authorisation
//
// Every route except health, metrics and the WebSocket upgrade needs a
// bearer access token. Routes check a permission such as read:robots.
// Starting a tour and moving the robot also need the has_control claim
// unless the caller is an admin. Robot endpoints that talk to the broker
// return 401 while the broker session is not authenticated.
//
// # Lifecycle
//
//	hub := api.NewHub(cfg.WebSocket, logger)
//	srv, err := api.New(api.Deps{ExternalHub: hub, ...})
//	srv.Start(ctx)
//	defer srv.Close()
package api
