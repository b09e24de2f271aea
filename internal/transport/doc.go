// Package transport owns the outbound UDP channel to the mixing server.
package transport
