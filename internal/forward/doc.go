// Package forward runs the periodic loop that snapshots the simulation
// world and forwards position telemetry to the radio mixing server.
package forward
