package room

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Audience selects the recipients of one delivery relative to the connection
// whose event produced it.
type Audience int

const (
	// AudienceSender delivers to the originating connection only.
	AudienceSender Audience = iota
	// AudienceAll delivers to every connection, the sender included.
	AudienceAll
	// AudienceOthers delivers to every connection except the sender.
	AudienceOthers
)

// Delivery pairs an outbound envelope with the audience that should
// receive it.
type Delivery struct {
	Audience Audience
	Envelope Envelope
}

// Outcome is everything the transport must do after one event was applied:
// send the deliveries in order, then close the sender or every connection
// when asked to.
type Outcome struct {
	Deliveries  []Delivery
	CloseSender bool
	CloseAll    bool
}

func (o *Outcome) send(aud Audience, env Envelope) {
	o.Deliveries = append(o.Deliveries, Delivery{Audience: aud, Envelope: env})
}

// Session is the per-connection context handed to the router with every
// event. Name stays empty until a join or reconnect succeeds; events that
// require an identity are silently dropped while it is unset.
type Session struct {
	ID   uuid.UUID
	Name string
}

// NewSession creates an unbound session with a fresh connection ID.
func NewSession() *Session {
	return &Session{ID: uuid.New()}
}

// Bound reports whether the session has a participant name attached.
func (s *Session) Bound() bool {
	return s.Name != ""
}

const roomFullMessage = "Chat room is full."

// Router is the protocol state machine. One instance serves the whole room;
// it owns no transport and no locks, relying on the hub loop to serialize
// calls.
type Router struct {
	registry *Registry
	store    *Store
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

// NewRouter wires the state machine to its registry and store.
func NewRouter(registry *Registry, store *Store, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		registry: registry,
		store:    store,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// Participants returns the number of active participants, for metrics.
func (r *Router) Participants() int {
	return r.registry.Len()
}

// HandleConnect greets a freshly attached connection with the current
// roster, before any join has happened.
func (r *Router) HandleConnect(s *Session) Outcome {
	var out Outcome
	out.send(AudienceSender, r.rosterEnvelope())
	return out
}

// HandleDisconnect processes a transport-level disconnect. Nothing is
// broadcast unless the connection was bound to a name that was still active;
// this keeps disconnects after a leave or a room reset silent.
func (r *Router) HandleDisconnect(s *Session) Outcome {
	var out Outcome
	if s == nil || !s.Bound() {
		return out
	}
	name := s.Name
	s.Name = ""
	if !r.registry.Remove(name) {
		return out
	}
	out.send(AudienceAll, r.envelope(EventUserLeft, NamePayload{Name: name}))
	out.send(AudienceAll, r.rosterEnvelope())
	return out
}

// HandleEvent validates and applies one inbound envelope and returns what to
// broadcast. Malformed payloads and events that need a bound name on an
// unbound session are dropped without error.
func (r *Router) HandleEvent(s *Session, env Envelope) Outcome {
	switch env.Event {
	case EventSetUsername:
		return r.handleSetUsername(s, env.Data)
	case EventUserReconnect:
		return r.handleReconnect(s, env.Data)
	case EventChatMessage:
		return r.handleChatMessage(s, env.Data)
	case EventAddReaction:
		return r.handleAddReaction(s, env.Data)
	case EventReadMessage:
		return r.handleReadMessage(s, env.Data)
	case EventTyping:
		return r.handleTyping(s, EventDisplayTyping)
	case EventStopTyping:
		return r.handleTyping(s, EventRemoveTyping)
	case EventLeaveChat:
		return r.handleLeaveChat(s)
	case EventEndChat:
		return r.handleEndChat()
	default:
		r.log.Debug("dropping unknown event", "event", env.Event, "session", s.ID)
		return Outcome{}
	}
}

func (r *Router) handleSetUsername(s *Session, data json.RawMessage) Outcome {
	var out Outcome
	var p SetUsernamePayload
	if !r.decode(s, EventSetUsername, data, &p) {
		return out
	}

	assigned, err := r.registry.Register(p.Name)
	if err != nil {
		out.send(AudienceSender, r.envelope(EventSetUsername, SetUsernameAck{
			Success: false,
			Message: roomFullMessage,
		}))
		return out
	}

	s.Name = assigned
	r.log.Info("participant joined", "name", assigned, "session", s.ID)

	out.send(AudienceSender, r.envelope(EventSetUsername, SetUsernameAck{
		Success:  true,
		Username: assigned,
	}))
	out.send(AudienceAll, r.envelope(EventUserJoined, NamePayload{Name: assigned}))
	out.send(AudienceAll, r.rosterEnvelope())
	return out
}

func (r *Router) handleReconnect(s *Session, data json.RawMessage) Outcome {
	var out Outcome
	var p ReconnectPayload
	if !r.decode(s, EventUserReconnect, data, &p) {
		return out
	}

	joined, err := r.registry.Reconnect(p.Name)
	if err != nil {
		// The room filled up while this client was away: tell just this
		// connection the chat is over for it.
		out.send(AudienceSender, Envelope{Event: EventEndChat})
		out.CloseSender = true
		return out
	}

	s.Name = p.Name
	if !joined {
		return out
	}

	r.log.Info("participant reconnected", "name", p.Name, "session", s.ID)
	out.send(AudienceAll, r.envelope(EventUserJoined, NamePayload{Name: p.Name}))
	out.send(AudienceAll, r.rosterEnvelope())
	return out
}

func (r *Router) handleChatMessage(s *Session, data json.RawMessage) Outcome {
	var out Outcome
	if !s.Bound() {
		return out
	}
	var p ChatMessagePayload
	if !r.decode(s, EventChatMessage, data, &p) {
		return out
	}

	msg := r.store.Append(s.Name, p.Text, r.now())
	out.send(AudienceAll, r.envelope(EventChatMessage, msg))
	return out
}

func (r *Router) handleAddReaction(s *Session, data json.RawMessage) Outcome {
	var out Outcome
	if !s.Bound() {
		return out
	}
	var p AddReactionPayload
	if !r.decode(s, EventAddReaction, data, &p) {
		return out
	}

	tally, changed := r.store.ToggleReaction(p.MessageID, s.Name, p.Reaction)
	if !changed {
		return out
	}
	out.send(AudienceAll, r.envelope(EventUpdateReactions, ReactionsUpdate{
		MessageID: p.MessageID,
		Reactions: tally,
	}))
	return out
}

func (r *Router) handleReadMessage(s *Session, data json.RawMessage) Outcome {
	var out Outcome
	if !s.Bound() {
		return out
	}
	var p ReadMessagePayload
	if !r.decode(s, EventReadMessage, data, &p) {
		return out
	}

	readBy, changed := r.store.MarkRead(p.MessageID, s.Name)
	if !changed {
		return out
	}
	out.send(AudienceAll, r.envelope(EventUpdateReadReceipts, ReadReceiptsUpdate{
		MessageID: p.MessageID,
		ReadBy:    readBy,
	}))
	return out
}

func (r *Router) handleTyping(s *Session, event string) Outcome {
	var out Outcome
	if !s.Bound() {
		return out
	}
	out.send(AudienceOthers, r.envelope(event, NamePayload{Name: s.Name}))
	return out
}

func (r *Router) handleLeaveChat(s *Session) Outcome {
	var out Outcome
	if !s.Bound() {
		return out
	}

	// Unbind before the connection dies so the trailing transport
	// disconnect does not announce a second departure.
	name := s.Name
	s.Name = ""
	r.registry.Remove(name)
	r.log.Info("participant left", "name", name, "session", s.ID)

	out.send(AudienceAll, r.envelope(EventUserLeft, NamePayload{Name: name}))
	out.send(AudienceAll, r.rosterEnvelope())
	out.CloseSender = true
	return out
}

func (r *Router) handleEndChat() Outcome {
	var out Outcome
	r.log.Info("room ended", "participants", r.registry.Len(), "messages", r.store.Len())

	out.send(AudienceAll, Envelope{Event: EventEndChat})
	r.registry.Reset()
	r.store.Reset()
	out.send(AudienceAll, r.rosterEnvelope())
	out.CloseAll = true
	return out
}

// decode unmarshals and validates an inbound payload, reporting whether the
// event should be processed. Failures are logged and swallowed: a bad
// payload discards the event, never the connection.
func (r *Router) decode(s *Session, event string, data json.RawMessage, into any) bool {
	if err := json.Unmarshal(data, into); err != nil {
		r.log.Debug("discarding malformed payload", "event", event, "session", s.ID, "error", err)
		return false
	}
	if err := r.validate.Struct(into); err != nil {
		r.log.Debug("discarding invalid payload", "event", event, "session", s.ID, "error", err)
		return false
	}
	return true
}

func (r *Router) rosterEnvelope() Envelope {
	return r.envelope(EventUpdateUserList, r.registry.List())
}

// envelope marshals a server-built payload. Marshalling our own types only
// fails on programming errors, which are logged and produce an empty data
// field rather than a dropped broadcast.
func (r *Router) envelope(event string, data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		r.log.Error("marshalling outbound payload failed", "event", event, "error", err)
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Data: raw}
}
