package room

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var routerEpoch = time.Date(2025, time.March, 14, 9, 26, 53, 0, time.UTC)

func newTestRouter(capacity int) *Router {
	r := NewRouter(NewRegistry(capacity), NewStore(), nil)
	r.now = func() time.Time { return routerEpoch }
	return r
}

func mustEnvelope(t *testing.T, event string, data any) Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{Event: event, Data: raw}
}

func decodeData[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// join binds a fresh session through the set-username path.
func join(t *testing.T, r *Router, name string) *Session {
	t.Helper()
	s := NewSession()
	out := r.HandleEvent(s, mustEnvelope(t, EventSetUsername, SetUsernamePayload{Name: name}))
	require.True(t, s.Bound(), "join for %q did not bind the session", name)
	require.Len(t, out.Deliveries, 3)
	return s
}

func TestRouter_HandleConnect(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(3)
	join(t, r, "alice")

	out := r.HandleConnect(NewSession())

	req.Len(out.Deliveries, 1)
	req.Equal(AudienceSender, out.Deliveries[0].Audience)
	req.Equal(EventUpdateUserList, out.Deliveries[0].Envelope.Event)
	req.Equal([]string{"alice"}, decodeData[[]string](t, out.Deliveries[0].Envelope))
}

func TestRouter_SetUsername(t *testing.T) {
	t.Run("should ack the sender and announce the join to everyone", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := NewSession()

		out := r.HandleEvent(s, mustEnvelope(t, EventSetUsername, SetUsernamePayload{Name: "alice"}))

		req.Len(out.Deliveries, 3)
		req.False(out.CloseSender)
		req.False(out.CloseAll)

		ack := out.Deliveries[0]
		req.Equal(AudienceSender, ack.Audience)
		req.Equal(EventSetUsername, ack.Envelope.Event)
		payload := decodeData[SetUsernameAck](t, ack.Envelope)
		req.True(payload.Success)
		req.Equal("alice", payload.Username)

		joined := out.Deliveries[1]
		req.Equal(AudienceAll, joined.Audience)
		req.Equal(EventUserJoined, joined.Envelope.Event)
		req.Equal("alice", decodeData[NamePayload](t, joined.Envelope).Name)

		roster := out.Deliveries[2]
		req.Equal(AudienceAll, roster.Audience)
		req.Equal(EventUpdateUserList, roster.Envelope.Event)
		req.Equal([]string{"alice"}, decodeData[[]string](t, roster.Envelope))

		req.Equal("alice", s.Name)
	})

	t.Run("should reply with a failure ack to the sender only when full", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		join(t, r, "a")
		join(t, r, "b")
		join(t, r, "c")

		s := NewSession()
		out := r.HandleEvent(s, mustEnvelope(t, EventSetUsername, SetUsernamePayload{Name: "d"}))

		req.Len(out.Deliveries, 1)
		req.Equal(AudienceSender, out.Deliveries[0].Audience)
		payload := decodeData[SetUsernameAck](t, out.Deliveries[0].Envelope)
		req.False(payload.Success)
		req.NotEmpty(payload.Message)
		req.False(s.Bound())
		req.Equal(3, r.Participants())
	})

	t.Run("should assign a suffixed name on a duplicate request", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		join(t, r, "alice")

		s := NewSession()
		out := r.HandleEvent(s, mustEnvelope(t, EventSetUsername, SetUsernamePayload{Name: "alice"}))

		payload := decodeData[SetUsernameAck](t, out.Deliveries[0].Envelope)
		req.True(payload.Success)
		req.Equal("alice1", payload.Username)
		req.Equal("alice1", s.Name)
	})

	t.Run("should drop a malformed payload", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := NewSession()

		out := r.HandleEvent(s, Envelope{Event: EventSetUsername, Data: json.RawMessage(`{"name":`)})

		req.Empty(out.Deliveries)
		req.False(s.Bound())
	})

	t.Run("should drop an empty name", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := NewSession()

		out := r.HandleEvent(s, mustEnvelope(t, EventSetUsername, SetUsernamePayload{Name: ""}))

		req.Empty(out.Deliveries)
		req.False(s.Bound())
	})
}

func TestRouter_Reconnect(t *testing.T) {
	t.Run("should rejoin silently when the name is still active", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		join(t, r, "alice")

		s := NewSession()
		out := r.HandleEvent(s, mustEnvelope(t, EventUserReconnect, ReconnectPayload{Name: "alice"}))

		req.Empty(out.Deliveries)
		req.False(out.CloseSender)
		req.Equal("alice", s.Name)
	})

	t.Run("should announce the join when the name was not active", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)

		s := NewSession()
		out := r.HandleEvent(s, mustEnvelope(t, EventUserReconnect, ReconnectPayload{Name: "alice"}))

		req.Len(out.Deliveries, 2)
		req.Equal(EventUserJoined, out.Deliveries[0].Envelope.Event)
		req.Equal(EventUpdateUserList, out.Deliveries[1].Envelope.Event)
		req.Equal("alice", s.Name)
	})

	t.Run("should end the session of a reconnect rejected at capacity", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		join(t, r, "a")
		join(t, r, "b")
		join(t, r, "c")

		s := NewSession()
		out := r.HandleEvent(s, mustEnvelope(t, EventUserReconnect, ReconnectPayload{Name: "d"}))

		req.Len(out.Deliveries, 1)
		req.Equal(AudienceSender, out.Deliveries[0].Audience)
		req.Equal(EventEndChat, out.Deliveries[0].Envelope.Event)
		req.True(out.CloseSender)
		req.False(out.CloseAll)
		req.False(s.Bound())
	})
}

func TestRouter_ChatMessage(t *testing.T) {
	t.Run("should broadcast the full message record to everyone", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := join(t, r, "alice")

		out := r.HandleEvent(s, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "hello there"}))

		req.Len(out.Deliveries, 1)
		req.Equal(AudienceAll, out.Deliveries[0].Audience)
		req.Equal(EventChatMessage, out.Deliveries[0].Envelope.Event)

		msg := decodeData[Message](t, out.Deliveries[0].Envelope)
		req.Equal(0, msg.ID)
		req.Equal("alice", msg.User)
		req.Equal("hello there", msg.Body)
		req.True(msg.Time.Equal(routerEpoch))
		req.Empty(msg.Reactions)
		req.NotNil(msg.ReadBy)
		req.Empty(msg.ReadBy)
	})

	t.Run("should silently ignore a message from an unbound session", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)

		out := r.HandleEvent(NewSession(), mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "sneaky"}))

		req.Empty(out.Deliveries)
	})
}

func TestRouter_Reactions(t *testing.T) {
	t.Run("should broadcast the updated tally", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		alice := join(t, r, "alice")
		bob := join(t, r, "bob")
		r.HandleEvent(alice, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "hi"}))

		out := r.HandleEvent(bob, mustEnvelope(t, EventAddReaction, AddReactionPayload{MessageID: 0, Reaction: "👍"}))

		req.Len(out.Deliveries, 1)
		req.Equal(AudienceAll, out.Deliveries[0].Audience)
		update := decodeData[ReactionsUpdate](t, out.Deliveries[0].Envelope)
		req.Equal(0, update.MessageID)
		req.Equal(map[string]int{"👍": 1}, update.Reactions)
	})

	t.Run("should stay silent when nothing changed", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := join(t, r, "alice")

		// Unknown message ID.
		out := r.HandleEvent(s, mustEnvelope(t, EventAddReaction, AddReactionPayload{MessageID: 9, Reaction: "👍"}))
		req.Empty(out.Deliveries)

		// Clearing a reaction that was never applied.
		r.HandleEvent(s, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "hi"}))
		out = r.HandleEvent(s, mustEnvelope(t, EventAddReaction, AddReactionPayload{MessageID: 0}))
		req.Empty(out.Deliveries)
	})

	t.Run("should ignore reactions from unbound sessions", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := join(t, r, "alice")
		r.HandleEvent(s, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "hi"}))

		out := r.HandleEvent(NewSession(), mustEnvelope(t, EventAddReaction, AddReactionPayload{MessageID: 0, Reaction: "👍"}))
		req.Empty(out.Deliveries)
	})
}

func TestRouter_ReadReceipts(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(3)
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	r.HandleEvent(alice, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "hi"}))

	out := r.HandleEvent(bob, mustEnvelope(t, EventReadMessage, ReadMessagePayload{MessageID: 0}))
	req.Len(out.Deliveries, 1)
	update := decodeData[ReadReceiptsUpdate](t, out.Deliveries[0].Envelope)
	req.Equal([]string{"bob"}, update.ReadBy)

	// The author reading their own message stays silent.
	out = r.HandleEvent(alice, mustEnvelope(t, EventReadMessage, ReadMessagePayload{MessageID: 0}))
	req.Empty(out.Deliveries)

	// As does a repeated read.
	out = r.HandleEvent(bob, mustEnvelope(t, EventReadMessage, ReadMessagePayload{MessageID: 0}))
	req.Empty(out.Deliveries)
}

func TestRouter_Typing(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(3)
	s := join(t, r, "alice")

	out := r.HandleEvent(s, Envelope{Event: EventTyping})
	req.Len(out.Deliveries, 1)
	req.Equal(AudienceOthers, out.Deliveries[0].Audience)
	req.Equal(EventDisplayTyping, out.Deliveries[0].Envelope.Event)
	req.Equal("alice", decodeData[NamePayload](t, out.Deliveries[0].Envelope).Name)

	out = r.HandleEvent(s, Envelope{Event: EventStopTyping})
	req.Len(out.Deliveries, 1)
	req.Equal(AudienceOthers, out.Deliveries[0].Audience)
	req.Equal(EventRemoveTyping, out.Deliveries[0].Envelope.Event)

	// Typing before joining goes nowhere.
	out = r.HandleEvent(NewSession(), Envelope{Event: EventTyping})
	req.Empty(out.Deliveries)
}

func TestRouter_LeaveChat(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(3)
	s := join(t, r, "alice")
	join(t, r, "bob")

	out := r.HandleEvent(s, Envelope{Event: EventLeaveChat})

	req.Len(out.Deliveries, 2)
	req.Equal(EventUserLeft, out.Deliveries[0].Envelope.Event)
	req.Equal("alice", decodeData[NamePayload](t, out.Deliveries[0].Envelope).Name)
	req.Equal(EventUpdateUserList, out.Deliveries[1].Envelope.Event)
	req.Equal([]string{"bob"}, decodeData[[]string](t, out.Deliveries[1].Envelope))
	req.True(out.CloseSender)

	// The trailing transport disconnect announces nothing further.
	out = r.HandleDisconnect(s)
	req.Empty(out.Deliveries)
}

func TestRouter_EndChat(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(3)
	alice := join(t, r, "alice")
	join(t, r, "bob")
	join(t, r, "carol")
	for i := 0; i < 5; i++ {
		r.HandleEvent(alice, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "msg"}))
	}

	out := r.HandleEvent(alice, Envelope{Event: EventEndChat})

	req.Len(out.Deliveries, 2)
	req.Equal(EventEndChat, out.Deliveries[0].Envelope.Event)
	req.Equal(AudienceAll, out.Deliveries[0].Audience)
	req.Equal(EventUpdateUserList, out.Deliveries[1].Envelope.Event)
	req.Empty(decodeData[[]string](t, out.Deliveries[1].Envelope))
	req.True(out.CloseAll)
	req.Equal(0, r.Participants())

	// The store restarted: the next message gets ID 0 again.
	s := NewSession()
	r.HandleEvent(s, mustEnvelope(t, EventSetUsername, SetUsernamePayload{Name: "dave"}))
	msgOut := r.HandleEvent(s, mustEnvelope(t, EventChatMessage, ChatMessagePayload{Text: "fresh"}))
	req.Len(msgOut.Deliveries, 1)
	req.Equal(0, decodeData[Message](t, msgOut.Deliveries[0].Envelope).ID)
}

func TestRouter_Disconnect(t *testing.T) {
	t.Run("should announce the departure of a bound session", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		s := join(t, r, "alice")

		out := r.HandleDisconnect(s)

		req.Len(out.Deliveries, 2)
		req.Equal(EventUserLeft, out.Deliveries[0].Envelope.Event)
		req.Equal(EventUpdateUserList, out.Deliveries[1].Envelope.Event)
		req.False(out.CloseSender)
		req.Equal(0, r.Participants())
	})

	t.Run("should stay silent for an unbound session", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)

		out := r.HandleDisconnect(NewSession())
		req.Empty(out.Deliveries)
	})

	t.Run("should stay silent after a room reset", func(t *testing.T) {
		req := require.New(t)
		r := newTestRouter(3)
		alice := join(t, r, "alice")
		bob := join(t, r, "bob")

		r.HandleEvent(alice, Envelope{Event: EventEndChat})

		// bob's connection is torn down afterwards; the roster is already
		// empty so nothing is broadcast.
		out := r.HandleDisconnect(bob)
		req.Empty(out.Deliveries)
	})
}

func TestRouter_UnknownEvent(t *testing.T) {
	req := require.New(t)
	r := newTestRouter(3)
	s := join(t, r, "alice")

	out := r.HandleEvent(s, Envelope{Event: "no such event"})
	req.Empty(out.Deliveries)
	req.False(out.CloseSender)
	req.False(out.CloseAll)
}
