// Package audit records who told the robot to do what.
//
// Every connect, audio upload, move goal and tour start that reaches the
// robot, from the API, the dashboard or the CLI, is written to the
// robot_audit table with its outcome.
package audit
