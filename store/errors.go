// store/errors.go
package store

import "errors"

var (
	ErrServerFull             = errors.New("server is full")
	ErrRoomFull               = errors.New("room is full")
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomClosed             = errors.New("room is closed")
	ErrUserNotFound           = errors.New("user not found")
	ErrAlreadyInRoom          = errors.New("user is already in the room")
	ErrNotInRoom              = errors.New("user is not in the room")
	ErrTransitionNotAllowed   = errors.New("room status transition not allowed")
	ErrCapacityBelowOccupancy = errors.New("room capacity cannot be less than current occupancy")
)
