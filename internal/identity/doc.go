// Package identity persists the per-deployment server name and SSRC.
package identity
