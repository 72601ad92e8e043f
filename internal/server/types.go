// Package server defines shared helper types that are reused across client
// and hub logic.
package server

import (
	"strings"

	"github.com/huddlechat/huddle/internal/room"
)

// inbound carries one decoded frame from a client connection into the hub's
// run loop, where it is applied to the room state.
type inbound struct {
	sender   *Client
	envelope room.Envelope
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
