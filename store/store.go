// store/store.go
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wfunc/typeracer/logger"
	"github.com/wfunc/typeracer/network"
	"github.com/wfunc/typeracer/session"
	"github.com/wfunc/typeracer/timer"
)

// initialMaxUsers is the capacity every room starts with; the host can raise
// it up to the configured ceiling afterwards.
const initialMaxUsers = 2

// Broadcaster is the slice of the broadcast manager the store needs.
// Defined here to keep the store free of a broadcast import.
type Broadcaster interface {
	Join(roomID string, sess *session.Session)
	Leave(roomID, sessionID string)
	BroadcastToRoom(roomID, event string, payload interface{})
}

// ParagraphFunc produces the text a room races on. Treated as an external,
// possibly slow call: it is never invoked while the store lock is held.
type ParagraphFunc func() string

type Config struct {
	MaxRooms       int
	MaxChatHistory int
	// Clock drives room timers; nil means the real clock.
	Clock clockwork.Clock
	// GenerateID overrides server-side id generation; nil means uuid.
	GenerateID func() (string, error)
}

// Store is the authoritative in-memory state: rooms, users, chat logs and the
// timers attached to rooms. A single mutex covers every table, and no
// broadcast or paragraph generation happens while it is held, so each
// operation's check-then-mutate sequence is atomic.
type Store struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	roomOrder []string
	users     map[string]*User
	chats     map[string][]Chat
	timers    map[TimerKey]*timer.Countdown

	broadcaster Broadcaster
	paragraph   ParagraphFunc
	generateID  func() (string, error)
	clock       clockwork.Clock

	maxRooms       int
	maxChatHistory int
}

func NewStore(cfg Config, b Broadcaster, paragraph ParagraphFunc) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	generateID := cfg.GenerateID
	if generateID == nil {
		generateID = func() (string, error) { return uuid.New().String(), nil }
	}
	return &Store{
		rooms:          make(map[string]*Room),
		users:          make(map[string]*User),
		chats:          make(map[string][]Chat),
		timers:         make(map[TimerKey]*timer.Countdown),
		broadcaster:    b,
		paragraph:      paragraph,
		generateID:     generateID,
		clock:          clock,
		maxRooms:       cfg.MaxRooms,
		maxChatHistory: cfg.MaxChatHistory,
	}
}

// --- users ---

func (s *Store) AddUser(userID, username, avatar string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = &User{UserID: userID, Username: username, Avatar: avatar}
	logger.Log.Debugf("added user %s (%s), %d users total", userID, username, len(s.users))
}

func (s *Store) GetUser(userID string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[userID]
	if !exists {
		return User{}, false
	}
	return *user, true
}

func (s *Store) DeleteUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	logger.Log.Debugf("deleted user %s, %d users total", userID, len(s.users))
}

func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// --- rooms ---

// CreateRoom makes a fresh WAITING room with the requester as host and sole
// member, joins their connection to the room's broadcast group, and emits
// room_created to them. The room only becomes visible once the paragraph has
// been generated.
func (s *Store) CreateRoom(sess *session.Session, hostID string, roomType RoomType) (*RoomSnapshot, error) {
	s.mu.Lock()
	if len(s.rooms) >= s.maxRooms {
		s.mu.Unlock()
		return nil, ErrServerFull
	}
	if _, exists := s.users[hostID]; !exists {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}
	s.mu.Unlock()

	paragraph := s.paragraph()
	roomID, err := s.generateID()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Re-check the cap: another room may have been created while the
	// paragraph was being generated.
	if len(s.rooms) >= s.maxRooms {
		s.mu.Unlock()
		return nil, ErrServerFull
	}
	host, exists := s.users[hostID]
	if !exists {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}

	room := &Room{
		RoomID:          roomID,
		Users:           []*User{host},
		HostID:          hostID,
		MaxUsers:        initialMaxUsers,
		RoomType:        roomType,
		RoomStatus:      StatusWaiting,
		ParagraphToType: paragraph,
	}
	s.rooms[roomID] = room
	s.roomOrder = append(s.roomOrder, roomID)
	snapshot := room.snapshot()
	s.mu.Unlock()

	s.broadcaster.Join(roomID, sess)
	if err := sess.Send(network.EventRoomCreated, roomIDPayload{RoomID: roomID}); err != nil {
		logger.Log.Debugf("room_created to session %s failed: %v", sess.ID, err)
	}

	logger.Log.Infof("user %s created room %s (%s)", hostID, roomID, roomType)
	return &snapshot, nil
}

// JoinRoom validates in order: user exists, room exists, room not full, room
// accepting joins, user not already a member. The first failure aborts with
// no mutation.
func (s *Store) JoinRoom(sess *session.Session, userID, roomID string) (*RoomSnapshot, error) {
	s.mu.Lock()
	user, exists := s.users[userID]
	if !exists {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if len(room.Users) >= room.MaxUsers {
		s.mu.Unlock()
		return nil, ErrRoomFull
	}
	if room.RoomStatus != StatusWaiting || room.RoomType == RoomTypeClosed {
		s.mu.Unlock()
		return nil, ErrRoomClosed
	}
	for _, member := range room.Users {
		if member.UserID == userID {
			s.mu.Unlock()
			return nil, ErrAlreadyInRoom
		}
	}

	room.Users = append(room.Users, user)
	joined := *user
	snapshot := room.snapshot()
	s.mu.Unlock()

	// Existing members hear about the join before the joiner enters the
	// broadcast group, so nobody is told about themselves.
	s.broadcaster.BroadcastToRoom(roomID, network.EventUserJoined, joined)
	s.broadcaster.Join(roomID, sess)
	if err := sess.Send(network.EventJoinedRoom, roomIDPayload{RoomID: roomID}); err != nil {
		logger.Log.Debugf("joined_room to session %s failed: %v", sess.ID, err)
	}

	logger.Log.Infof("user %s joined room %s", userID, roomID)
	return &snapshot, nil
}

// JoinNextAvailableRoom places the user in the first public WAITING room with
// a free slot, or creates a new public room when none qualifies. The scan and
// the join happen under one lock so the chosen slot cannot be taken away.
func (s *Store) JoinNextAvailableRoom(sess *session.Session, userID string) (*RoomSnapshot, error) {
	s.mu.Lock()
	user, exists := s.users[userID]
	if !exists {
		s.mu.Unlock()
		return nil, ErrUserNotFound
	}

scan:
	for _, roomID := range s.roomOrder {
		room := s.rooms[roomID]
		if room.RoomType != RoomTypePublic ||
			room.RoomStatus != StatusWaiting ||
			len(room.Users) >= room.MaxUsers {
			continue
		}
		for _, member := range room.Users {
			if member.UserID == userID {
				continue scan
			}
		}

		room.Users = append(room.Users, user)
		joined := *user
		snapshot := room.snapshot()
		s.mu.Unlock()

		s.broadcaster.BroadcastToRoom(roomID, network.EventUserJoined, joined)
		s.broadcaster.Join(roomID, sess)
		if err := sess.Send(network.EventJoinedRoom, roomIDPayload{RoomID: roomID}); err != nil {
			logger.Log.Debugf("joined_room to session %s failed: %v", sess.ID, err)
		}

		logger.Log.Infof("user %s matched into room %s", userID, roomID)
		return &snapshot, nil
	}
	s.mu.Unlock()

	return s.CreateRoom(sess, userID, RoomTypePublic)
}

// LeaveRoom removes the user from the room. The last occupant tears the room
// down entirely. If only one racer is left mid-countdown or mid-race, the
// race is aborted: timers stop, the room resets to WAITING and a fresh
// paragraph is generated for the reset_room broadcast.
func (s *Store) LeaveRoom(sess *session.Session, userID, roomID string) error {
	s.mu.Lock()
	if _, exists := s.users[userID]; !exists {
		s.mu.Unlock()
		return ErrUserNotFound
	}
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return ErrRoomNotFound
	}

	idx := -1
	for i, member := range room.Users {
		if member.UserID == userID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return ErrNotInRoom
	}

	if len(room.Users) == 1 {
		stopped := s.cleanupLocked(roomID)
		s.mu.Unlock()

		for _, t := range stopped {
			t.Stop()
		}
		s.broadcaster.Leave(roomID, sess.ID)
		logger.Log.Infof("user %s left room %s; room deleted", userID, roomID)
		return nil
	}

	departing := *room.Users[idx]
	room.Users = append(room.Users[:idx], room.Users[idx+1:]...)
	if room.HostID == userID {
		room.HostID = room.Users[0].UserID
	}
	newHostID := room.HostID

	needsReset := len(room.Users) == 1 &&
		room.RoomStatus != StatusWaiting && room.RoomStatus != StatusResults
	var stopped []*timer.Countdown
	if needsReset {
		stopped = s.removeTimersLocked(roomID)
		room.RoomStatus = StatusWaiting
		for _, member := range room.Users {
			member.IsFinished = false
		}
	}
	s.mu.Unlock()

	for _, t := range stopped {
		t.Stop()
	}
	s.broadcaster.Leave(roomID, sess.ID)
	s.broadcaster.BroadcastToRoom(roomID, network.EventUserLeft, userLeftPayload{
		User:      departing,
		NewHostID: newHostID,
	})

	if needsReset {
		logger.Log.Infof("room %s reset to waiting: only one racer left", roomID)
		go s.regenerateParagraph(roomID)
	}

	logger.Log.Infof("user %s left room %s", userID, roomID)
	return nil
}

// regenerateParagraph runs off the event path: leaving is acknowledged
// immediately, reset_room goes out once the new paragraph resolves.
func (s *Store) regenerateParagraph(roomID string) {
	paragraph := s.paragraph()

	s.mu.Lock()
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return
	}
	room.ParagraphToType = paragraph
	s.mu.Unlock()

	s.broadcaster.BroadcastToRoom(roomID, network.EventResetRoom, resetRoomPayload{
		ParagraphToType: paragraph,
	})
}

// ResetRoom returns a RESULTS room to the lobby: status back to WAITING,
// finished flags cleared, fresh paragraph broadcast via reset_room. Only
// finished races may be reset this way; mid-race aborts go through the leave
// safety net, which also stops the room's timers.
func (s *Store) ResetRoom(roomID string) error {
	s.mu.Lock()
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return ErrRoomNotFound
	}
	if room.RoomStatus != StatusResults {
		s.mu.Unlock()
		return ErrTransitionNotAllowed
	}
	room.RoomStatus = StatusWaiting
	for _, member := range room.Users {
		member.IsFinished = false
	}
	s.mu.Unlock()

	go s.regenerateParagraph(roomID)
	return nil
}

func (s *Store) GetRoom(roomID string) (*RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return nil, false
	}
	snapshot := room.snapshot()
	return &snapshot, true
}

// Rooms returns snapshots of every room in creation order.
func (s *Store) Rooms() []RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]RoomSnapshot, 0, len(s.roomOrder))
	for _, roomID := range s.roomOrder {
		result = append(result, s.rooms[roomID].snapshot())
	}
	return result
}

func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// ChangeStatus moves the room through the lifecycle table; anything off the
// table is rejected.
func (s *Store) ChangeStatus(roomID string, to RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRoomNotFound
	}
	if !canTransition(room.RoomStatus, to) {
		return ErrTransitionNotAllowed
	}
	room.RoomStatus = to
	return nil
}

func (s *Store) SetRoomType(roomID string, roomType RoomType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRoomNotFound
	}
	room.RoomType = roomType
	return nil
}

// SetMaxUsers shrinks or grows capacity; shrinking below the current
// occupancy is rejected. Bounds against the configured ceiling are the
// orchestrator's concern.
func (s *Store) SetMaxUsers(roomID string, maxUsers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRoomNotFound
	}
	if len(room.Users) > maxUsers {
		return ErrCapacityBelowOccupancy
	}
	room.MaxUsers = maxUsers
	return nil
}

// MarkFinished flags the member as done and reports whether every current
// member has now finished. Both happen under one lock so the all-finished
// decision cannot race a concurrent leave or join.
func (s *Store) MarkFinished(roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[roomID]
	if !exists {
		return false, ErrRoomNotFound
	}
	found := false
	for _, member := range room.Users {
		if member.UserID == userID {
			member.IsFinished = true
			found = true
			break
		}
	}
	if !found {
		return false, ErrNotInRoom
	}
	for _, member := range room.Users {
		if !member.IsFinished {
			return false, nil
		}
	}
	return true, nil
}

// --- chats ---

// AddChat appends to the room's chat log, evicting the oldest entry beyond
// the history cap.
func (s *Store) AddChat(roomID, userID, message string) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[roomID]; !exists {
		return Chat{}, ErrRoomNotFound
	}
	user, exists := s.users[userID]
	if !exists {
		return Chat{}, ErrUserNotFound
	}

	chat := Chat{
		UserID:    userID,
		Username:  user.Username,
		Message:   message,
		CreatedAt: s.clock.Now(),
	}
	log := append(s.chats[roomID], chat)
	if len(log) > s.maxChatHistory {
		log = log[len(log)-s.maxChatHistory:]
	}
	s.chats[roomID] = log
	return chat, nil
}

// Chats returns the room's retained history, oldest first. Unknown rooms
// yield an empty list.
func (s *Store) Chats(roomID string) []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.chats[roomID]
	result := make([]Chat, len(log))
	copy(result, log)
	return result
}

// --- timers ---

// StartCountdown creates and starts a countdown keyed to the room. An
// existing timer under the same key is stopped and replaced, never orphaned.
func (s *Store) StartCountdown(roomID string, ticks int, kind TimerKind, interval time.Duration, onTick timer.OnTick) {
	key := TimerKey{RoomID: roomID, Kind: kind}

	s.mu.Lock()
	previous := s.timers[key]
	countdown := timer.NewWithClock(s.clock, interval, ticks, onTick)
	s.timers[key] = countdown
	s.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	countdown.Start()
}

func (s *Store) GetTimer(roomID string, kind TimerKind) (*timer.Countdown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, exists := s.timers[TimerKey{RoomID: roomID, Kind: kind}]
	return t, exists
}

// DeleteTimer stops and removes the room's timer of the given kind.
func (s *Store) DeleteTimer(roomID string, kind TimerKind) {
	key := TimerKey{RoomID: roomID, Kind: kind}

	s.mu.Lock()
	t := s.timers[key]
	delete(s.timers, key)
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}

// Cleanup deletes the room together with its chat history and timers.
func (s *Store) Cleanup(roomID string) {
	s.mu.Lock()
	stopped := s.cleanupLocked(roomID)
	s.mu.Unlock()

	for _, t := range stopped {
		t.Stop()
	}
}

func (s *Store) cleanupLocked(roomID string) []*timer.Countdown {
	stopped := s.removeTimersLocked(roomID)
	delete(s.chats, roomID)
	delete(s.rooms, roomID)
	for i, id := range s.roomOrder {
		if id == roomID {
			s.roomOrder = append(s.roomOrder[:i], s.roomOrder[i+1:]...)
			break
		}
	}
	logger.Log.Infof("deleted room %s, %d rooms total", roomID, len(s.rooms))
	return stopped
}

func (s *Store) removeTimersLocked(roomID string) []*timer.Countdown {
	var stopped []*timer.Countdown
	for _, kind := range []TimerKind{TimerCountdown, TimerGame} {
		key := TimerKey{RoomID: roomID, Kind: kind}
		if t, exists := s.timers[key]; exists {
			stopped = append(stopped, t)
			delete(s.timers, key)
		}
	}
	return stopped
}

// --- broadcast payloads owned by the store ---

type roomIDPayload struct {
	RoomID string `json:"room_id"`
}

type userLeftPayload struct {
	User      User   `json:"user"`
	NewHostID string `json:"new_host_id"`
}

type resetRoomPayload struct {
	ParagraphToType string `json:"paragraph_to_type"`
}
