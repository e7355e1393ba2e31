package network

// Client -> server events.
const (
	EventCreateRoom       = "create_room"
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventRequestRoomInfo  = "request_room_info"
	EventRequestChats     = "request_chats_in_room"
	EventSendMessage      = "send_message"
	EventChangeRoomType   = "change_room_type"
	EventChangeMaxPlayers = "change_max_players"
	EventStartGame        = "start_game"
	EventSendProgress     = "send_progress"
	EventBackToLobby      = "back_to_lobby"
)

// Server -> client events.
const (
	EventAck               = "ack"
	EventError             = "error"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventRoomCreated       = "room_created"
	EventJoinedRoom        = "joined_room"
	EventSendUserInfo      = "send_user_info"
	EventUserSentMessage   = "user_sent_message"
	EventRoomTypeChanged   = "room_type_changed"
	EventMaxPlayersChanged = "max_players_changed"
	EventGameStarted       = "game_started"
	EventCountdown         = "countdown"
	EventCountdownFinished = "countdown_finished"
	EventResetRoom         = "reset_room"
	EventSendUserProgress  = "send_user_progress"
	EventRaceTimeLeft      = "race_time_left"
	EventRaceFinished      = "race_finished"
)

// Named errors carried by the error event.
const (
	ErrNameServerFull     = "ServerFull"
	ErrNameRoomFull       = "RoomFull"
	ErrNameRoomNotFound   = "RoomNotFound"
	ErrNameRoomClosed     = "RoomClosed"
	ErrNameError          = "Error"
	ErrNameServerShutdown = "ServerShutdown"
)

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}
