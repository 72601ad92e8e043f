// Package room implements the authoritative state of the chat room: the set
// of active participants, the append-only message log with reactions and read
// receipts, and the event router that turns inbound client events into state
// mutations and outbound broadcasts.
//
// Nothing in this package talks to the network. The router returns an Outcome
// describing who should receive what; the transport layer in internal/server
// executes it. All types assume single-writer access: the hub's run loop is
// the only goroutine that may touch them.
package room
