package room

import "encoding/json"

// Event names carried in the envelope. The strings match the protocol of the
// original chat clients, so a browser client speaks the same dialect.
const (
	// Client to server.
	EventSetUsername   = "set username"
	EventUserReconnect = "user reconnect"
	EventChatMessage   = "chat message"
	EventAddReaction   = "add reaction"
	EventReadMessage   = "read message"
	EventTyping        = "typing"
	EventStopTyping    = "stop typing"
	EventLeaveChat     = "leave chat"
	EventEndChat       = "end chat"

	// Server to client. EventChatMessage and EventEndChat travel both ways.
	EventUpdateReactions    = "update reactions"
	EventUpdateReadReceipts = "update read receipts"
	EventDisplayTyping      = "display typing"
	EventRemoveTyping       = "remove typing"
	EventUserJoined         = "user joined"
	EventUserLeft           = "user left"
	EventUpdateUserList     = "update user list"
)

// Envelope is the framing of every WebSocket message in both directions: an
// event name plus an event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SetUsernamePayload asks the server to join the room under a display name.
type SetUsernamePayload struct {
	Name string `json:"name" validate:"required,max=64"`
}

// SetUsernameAck is the reply to a join attempt, sent to the requesting
// connection only.
type SetUsernameAck struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
}

// ReconnectPayload restores a session under a previously assigned name,
// typically after a page reload.
type ReconnectPayload struct {
	Name string `json:"name" validate:"required,max=64"`
}

// ChatMessagePayload carries the raw text of an outgoing message. The body
// is not sanitized server-side; rendering is a client concern.
type ChatMessagePayload struct {
	Text string `json:"text" validate:"required"`
}

// AddReactionPayload toggles the sender's reaction on a message. An empty or
// null reaction clears whatever reaction the sender had applied.
type AddReactionPayload struct {
	MessageID int    `json:"messageId" validate:"min=0"`
	Reaction  string `json:"reaction"`
}

// ReadMessagePayload marks a message as viewed by the sender.
type ReadMessagePayload struct {
	MessageID int `json:"messageId" validate:"min=0"`
}

// NamePayload names the participant a presence or typing event is about.
type NamePayload struct {
	Name string `json:"name"`
}

// ReactionsUpdate broadcasts the full reaction tally of one message.
type ReactionsUpdate struct {
	MessageID int            `json:"messageId"`
	Reactions map[string]int `json:"reactions"`
}

// ReadReceiptsUpdate broadcasts the full read-by set of one message.
type ReadReceiptsUpdate struct {
	MessageID int      `json:"messageId"`
	ReadBy    []string `json:"readBy"`
}
