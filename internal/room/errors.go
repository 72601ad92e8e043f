package room

import "errors"

// ErrRoomFull is returned when a join or reconnect would push the number of
// active participants past the configured capacity.
var ErrRoomFull = errors.New("room is full")
