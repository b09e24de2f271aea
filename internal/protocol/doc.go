// Package protocol implements the binary control-frame codec spoken
// between the bridge and the radio mixing server.
package protocol
