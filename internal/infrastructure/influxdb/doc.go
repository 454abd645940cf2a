// Package influxdb records robot telemetry history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Recorder implements
// robot.Recorder and writes three measurements, each tagged with the site:
//
//   - robot_status: one point per status change reported by the robot
//   - robot_pose: amcl pose samples (x, y, orientation z and w)
//   - audio_stream: one point per finished audio upload
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay := robot.NewTelemetryRelay(conn, hub, influxdb.NewRecorder(client, cfg.Site.ID), logger)
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Write failures arrive asynchronously through SetOnError.
package influxdb
