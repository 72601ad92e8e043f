package room

import "fmt"

// DefaultMaxParticipants is the room capacity used when no explicit limit is
// configured.
const DefaultMaxParticipants = 3

// Registry tracks the active participants of the room and the per-base-name
// counters used to disambiguate duplicate display names.
//
// Registry is pure state: it never emits events and carries no locking. The
// hub's run loop is the only caller, which gives it the single-writer
// discipline it needs.
type Registry struct {
	capacity int
	names    []string // join order
	active   map[string]struct{}
	counters map[string]int // base name -> suffixes handed out, never rewound
}

// NewRegistry creates an empty registry with the given capacity. A
// non-positive capacity falls back to DefaultMaxParticipants.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultMaxParticipants
	}
	return &Registry{
		capacity: capacity,
		active:   make(map[string]struct{}),
		counters: make(map[string]int),
	}
}

// Register adds a participant under the requested display name, suffixing it
// with the next per-base-name counter value when the name is already taken.
// It fails with ErrRoomFull when the room is at capacity.
func (r *Registry) Register(requested string) (string, error) {
	if len(r.names) >= r.capacity {
		return "", ErrRoomFull
	}

	assigned := requested
	if _, taken := r.active[assigned]; taken {
		// Counters only advance, so a suffix handed out earlier is never
		// reissued even after its holder leaves.
		for {
			r.counters[requested]++
			assigned = fmt.Sprintf("%s%d", requested, r.counters[requested])
			if _, taken := r.active[assigned]; !taken {
				break
			}
		}
	}

	r.add(assigned)
	return assigned, nil
}

// Reconnect restores a participant under a previously assigned name. It
// reports whether the name was newly added to the active set; restoring a
// name that is still active is a no-op. It fails with ErrRoomFull only when
// the name is not active and the room is at capacity.
func (r *Registry) Reconnect(name string) (bool, error) {
	if _, ok := r.active[name]; ok {
		return false, nil
	}
	if len(r.names) >= r.capacity {
		return false, ErrRoomFull
	}
	r.add(name)
	return true, nil
}

// Remove deletes the named participant from the active set and reports
// whether it was present. Removing an absent name is a no-op.
func (r *Registry) Remove(name string) bool {
	if _, ok := r.active[name]; !ok {
		return false
	}
	delete(r.active, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	return true
}

// Reset clears the active set and every disambiguation counter.
func (r *Registry) Reset() {
	r.names = nil
	r.active = make(map[string]struct{})
	r.counters = make(map[string]int)
}

// List returns the active participant names in join order. The returned
// slice is a copy and never nil, so it marshals as [] rather than null.
func (r *Registry) List() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of active participants.
func (r *Registry) Len() int {
	return len(r.names)
}

func (r *Registry) add(name string) {
	r.active[name] = struct{}{}
	r.names = append(r.names, name)
}
