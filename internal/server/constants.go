// Package server provides the HTTP and WebSocket control surface.
package server

import "time"

// Server configuration constants
const (
	// Per-connection WebSocket command rate limiting
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// Upper bound on uploaded analysis payloads
	MaxAnalysisBytes = 1 << 20
)
