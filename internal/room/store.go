package room

import "time"

// Message is one entry of the room's append-only log. The JSON field names
// are part of the wire protocol: a message record is broadcast verbatim when
// it is created.
type Message struct {
	ID            int               `json:"id"`
	User          string            `json:"user"`
	Body          string            `json:"message"`
	Time          time.Time         `json:"time"`
	Reactions     map[string]int    `json:"reactions"`
	UserReactions map[string]string `json:"userReactions"`
	ReadBy        []string          `json:"readBy"`
}

// Store is the ID-indexed message log. IDs start at 0, grow monotonically and
// are never reused before a Reset. Like the Registry it carries no locking;
// the hub loop is the only writer.
type Store struct {
	messages []*Message
	byID     map[int]*Message
	nextID   int
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{byID: make(map[int]*Message)}
}

// Append creates a message with the next unused ID, empty reaction state and
// an empty read-by set, stores it, and returns a snapshot of the record.
func (s *Store) Append(author, body string, at time.Time) Message {
	msg := &Message{
		ID:            s.nextID,
		User:          author,
		Body:          body,
		Time:          at.UTC(),
		Reactions:     make(map[string]int),
		UserReactions: make(map[string]string),
		ReadBy:        []string{},
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = msg
	return msg.snapshot()
}

// Find returns a snapshot of the message with the given ID. The second
// return value reports whether the ID is known.
func (s *Store) Find(id int) (Message, bool) {
	msg, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return msg.snapshot(), true
}

// ToggleReaction applies the single-reaction-per-user rule for a message:
// re-sending the user's current symbol removes it, a different symbol
// replaces any prior one, and an empty symbol clears the user's reaction.
// It returns the updated tally and whether any state changed; an unknown ID
// is a silent no-op.
func (s *Store) ToggleReaction(id int, user, reaction string) (map[string]int, bool) {
	msg, ok := s.byID[id]
	if !ok {
		return nil, false
	}

	prev, had := msg.UserReactions[user]
	switch {
	case had && prev == reaction:
		// Same symbol again: un-react.
		delete(msg.UserReactions, user)
		msg.decrement(prev)
	case had:
		delete(msg.UserReactions, user)
		msg.decrement(prev)
		if reaction != "" {
			msg.UserReactions[user] = reaction
			msg.Reactions[reaction]++
		}
	case reaction != "":
		msg.UserReactions[user] = reaction
		msg.Reactions[reaction]++
	default:
		// No prior reaction and nothing to apply.
		return nil, false
	}

	return copyTally(msg.Reactions), true
}

// MarkRead records that user has viewed the message. Unknown IDs, the
// message's own author, and repeated reads are silent no-ops. On change it
// returns the updated read-by set.
func (s *Store) MarkRead(id int, user string) ([]string, bool) {
	msg, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if msg.User == user {
		return nil, false
	}
	for _, name := range msg.ReadBy {
		if name == user {
			return nil, false
		}
	}
	msg.ReadBy = append(msg.ReadBy, user)
	return copyNames(msg.ReadBy), true
}

// Reset drops every message and restarts the ID counter at 0.
func (s *Store) Reset() {
	s.messages = nil
	s.byID = make(map[int]*Message)
	s.nextID = 0
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	return len(s.messages)
}

// decrement lowers the tally for a symbol, deleting the entry when it
// reaches zero so the tally never carries zero or negative counts.
func (m *Message) decrement(reaction string) {
	if count, ok := m.Reactions[reaction]; ok {
		if count <= 1 {
			delete(m.Reactions, reaction)
		} else {
			m.Reactions[reaction] = count - 1
		}
	}
}

// snapshot returns a deep copy so callers can never alias the store's
// internal maps.
func (m *Message) snapshot() Message {
	out := *m
	out.Reactions = copyTally(m.Reactions)
	out.UserReactions = make(map[string]string, len(m.UserReactions))
	for k, v := range m.UserReactions {
		out.UserReactions[k] = v
	}
	out.ReadBy = copyNames(m.ReadBy)
	return out
}

func copyTally(tally map[string]int) map[string]int {
	out := make(map[string]int, len(tally))
	for k, v := range tally {
		out[k] = v
	}
	return out
}

func copyNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
