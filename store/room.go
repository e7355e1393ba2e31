// store/room.go
package store

import (
	"time"
)

// RoomType controls who may join a room.
type RoomType string

const (
	RoomTypePrivate RoomType = "private"
	RoomTypePublic  RoomType = "public"
	RoomTypeClosed  RoomType = "closed"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypePrivate, RoomTypePublic, RoomTypeClosed:
		return true
	}
	return false
}

// RoomStatus is the race lifecycle state. It only changes through
// ChangeStatus and the reset paths; clients never set it directly.
type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusCountdown RoomStatus = "countdown"
	StatusPlaying   RoomStatus = "playing"
	StatusResults   RoomStatus = "results"
)

// allowedTransitions is the room lifecycle:
// waiting -> countdown -> playing -> results -> waiting,
// plus the mid-race aborts back to waiting.
var allowedTransitions = map[RoomStatus][]RoomStatus{
	StatusWaiting:   {StatusCountdown},
	StatusCountdown: {StatusPlaying, StatusWaiting},
	StatusPlaying:   {StatusResults, StatusWaiting},
	StatusResults:   {StatusWaiting},
}

func canTransition(from, to RoomStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TimerKind distinguishes the pre-race countdown from the race clock.
type TimerKind string

const (
	TimerCountdown TimerKind = "countdown"
	TimerGame      TimerKind = "game"
)

// TimerKey addresses a room's timer. A structured key, so room ids can never
// collide with a suffix of another id.
type TimerKey struct {
	RoomID string
	Kind   TimerKind
}

type User struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
	IsFinished bool   `json:"is_finished"`
}

// Room is the live record. Rooms hold the store's user pointers; the store's
// user table owns them.
type Room struct {
	RoomID          string
	Users           []*User
	HostID          string
	MaxUsers        int
	RoomType        RoomType
	RoomStatus      RoomStatus
	ParagraphToType string
}

// RoomSnapshot is a broadcast-safe copy of a room. Everything sent to clients
// goes through snapshots so async consumers never observe later mutations.
type RoomSnapshot struct {
	RoomID          string     `json:"room_id"`
	Users           []User     `json:"users"`
	HostID          string     `json:"host_id"`
	MaxUsers        int        `json:"max_users"`
	RoomType        RoomType   `json:"room_type"`
	RoomStatus      RoomStatus `json:"room_status"`
	ParagraphToType string     `json:"paragraph_to_type"`
}

func (r *Room) snapshot() RoomSnapshot {
	users := make([]User, len(r.Users))
	for i, u := range r.Users {
		users[i] = *u
	}
	return RoomSnapshot{
		RoomID:          r.RoomID,
		Users:           users,
		HostID:          r.HostID,
		MaxUsers:        r.MaxUsers,
		RoomType:        r.RoomType,
		RoomStatus:      r.RoomStatus,
		ParagraphToType: r.ParagraphToType,
	}
}

type Chat struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress is a player's live typing state. It is relayed, never stored,
// except for the finished flag on the room member.
type Progress struct {
	TypedWord string  `json:"typed_word"`
	Progress  int     `json:"progress"`
	WPM       float64 `json:"wpm"`
	Accuracy  float64 `json:"accuracy"`
}
