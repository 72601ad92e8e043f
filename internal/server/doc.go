// Package server implements the transport layer of the Huddle chat relay:
// WebSocket upgrades, per-connection pumps, and the hub whose run loop
// serializes every mutation of the room state in internal/room.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, metrics, and HTTP handlers.
package server
