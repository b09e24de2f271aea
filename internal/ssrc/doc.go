// Package ssrc derives stable 32-bit stream identifiers from string seeds.
package ssrc
