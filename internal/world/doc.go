// Package world defines the snapshot model the hosting simulation
// reports and the Source interface the forwarder consumes it through.
package world
