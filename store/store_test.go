package store

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/typeracer/network"
	"github.com/wfunc/typeracer/session"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct{}

func (m *MockConnection) Send(env *network.Envelope) error         { return nil }
func (m *MockConnection) SendVolatile(env *network.Envelope) error { return nil }
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error) { return nil, nil }
func (m *MockConnection) Close() error                             { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                     { return &net.TCPAddr{} }

// MockBroadcaster records every broadcaster call in order.
type MockBroadcaster struct {
	mutex sync.Mutex
	calls []string
}

func (m *MockBroadcaster) record(call string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockBroadcaster) Join(roomID string, sess *session.Session) {
	m.record("join:" + roomID + ":" + sess.ID)
}

func (m *MockBroadcaster) Leave(roomID, sessionID string) {
	m.record("leave:" + roomID + ":" + sessionID)
}

func (m *MockBroadcaster) BroadcastToRoom(roomID, event string, payload interface{}) {
	m.record("broadcast:" + roomID + ":" + event)
}

func (m *MockBroadcaster) Calls() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	result := make([]string, len(m.calls))
	copy(result, m.calls)
	return result
}

func (m *MockBroadcaster) waitForCall(t *testing.T, call string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, c := range m.Calls() {
			if c == call {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for broadcaster call %q, got %v", call, m.Calls())
}

func newTestSession(id string) *session.Session {
	sess := session.NewSession(id, &MockConnection{})
	sess.UserID = id
	return sess
}

type testEnv struct {
	store       *Store
	broadcaster *MockBroadcaster
}

func newTestStore(maxRooms, maxChatHistory int) *testEnv {
	broadcaster := &MockBroadcaster{}
	var counter int
	st := NewStore(Config{
		MaxRooms:       maxRooms,
		MaxChatHistory: maxChatHistory,
		Clock:          clockwork.NewFakeClock(),
		GenerateID: func() (string, error) {
			counter++
			return fmt.Sprintf("room-%d", counter), nil
		},
	}, broadcaster, func() string { return "the quick brown fox" })
	return &testEnv{store: st, broadcaster: broadcaster}
}

func TestStore_CreateRoom(t *testing.T) {
	env := newTestStore(10, 10)
	sess := newTestSession("alice")
	env.store.AddUser("alice", "Alice", "")

	room, err := env.store.CreateRoom(sess, "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if room.RoomID != "room-1" {
		t.Errorf("Expected room id room-1, got %s", room.RoomID)
	}
	if room.HostID != "alice" {
		t.Errorf("Expected host alice, got %s", room.HostID)
	}
	if len(room.Users) != 1 || room.Users[0].UserID != "alice" {
		t.Errorf("Expected the host as sole member, got %v", room.Users)
	}
	if room.MaxUsers != 2 {
		t.Errorf("Expected initial capacity 2, got %d", room.MaxUsers)
	}
	if room.RoomStatus != StatusWaiting {
		t.Errorf("Expected status waiting, got %s", room.RoomStatus)
	}
	if room.ParagraphToType == "" {
		t.Error("Expected a generated paragraph")
	}

	env.broadcaster.waitForCall(t, "join:room-1:alice")
}

func TestStore_CreateRoom_ServerFull(t *testing.T) {
	env := newTestStore(1, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")

	if _, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate); err != nil {
		t.Fatalf("First CreateRoom failed: %v", err)
	}
	_, err := env.store.CreateRoom(newTestSession("bob"), "bob", RoomTypePrivate)
	if !errors.Is(err, ErrServerFull) {
		t.Errorf("Expected ErrServerFull, got %v", err)
	}
}

func TestStore_JoinRoom_ValidationOrder(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	env.store.AddUser("carol", "Carol", "")
	alice := newTestSession("alice")
	room, err := env.store.CreateRoom(alice, "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	// Unknown user loses to unknown room.
	if _, err := env.store.JoinRoom(newTestSession("ghost"), "ghost", "no-such-room"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", "no-such-room"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	// Rejoining your own room is rejected.
	if _, err := env.store.JoinRoom(alice, "alice", room.RoomID); !errors.Is(err, ErrAlreadyInRoom) {
		t.Errorf("Expected ErrAlreadyInRoom, got %v", err)
	}

	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	// The room is at capacity now; fullness is reported before closedness.
	if _, err := env.store.JoinRoom(newTestSession("carol"), "carol", room.RoomID); !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}

	if err := env.store.SetMaxUsers(room.RoomID, 4); err != nil {
		t.Fatalf("SetMaxUsers failed: %v", err)
	}
	if err := env.store.SetRoomType(room.RoomID, RoomTypeClosed); err != nil {
		t.Fatalf("SetRoomType failed: %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("carol"), "carol", room.RoomID); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("Expected ErrRoomClosed for a closed room, got %v", err)
	}
}

func TestStore_JoinRoom_BroadcastExcludesJoiner(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	// user_joined must be broadcast before bob enters the group, so he never
	// hears about himself.
	calls := env.broadcaster.Calls()
	broadcastIdx, joinIdx := -1, -1
	for i, c := range calls {
		switch c {
		case "broadcast:" + room.RoomID + ":" + network.EventUserJoined:
			broadcastIdx = i
		case "join:" + room.RoomID + ":bob":
			joinIdx = i
		}
	}
	if broadcastIdx == -1 || joinIdx == -1 {
		t.Fatalf("Expected both user_joined broadcast and join, got %v", calls)
	}
	if broadcastIdx > joinIdx {
		t.Errorf("user_joined was broadcast after the joiner entered the group: %v", calls)
	}
}

func TestStore_LeaveRoom_HostTransfer(t *testing.T) {
	env := newTestStore(10, 10)
	for _, id := range []string{"alice", "bob", "carol"} {
		env.store.AddUser(id, id, "")
	}
	alice := newTestSession("alice")
	room, err := env.store.CreateRoom(alice, "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if err := env.store.SetMaxUsers(room.RoomID, 3); err != nil {
		t.Fatalf("SetMaxUsers failed: %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("carol"), "carol", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	if err := env.store.LeaveRoom(alice, "alice", room.RoomID); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}

	updated, exists := env.store.GetRoom(room.RoomID)
	if !exists {
		t.Fatal("Room should still exist with two members left")
	}
	// Host passes to the earliest remaining joiner.
	if updated.HostID != "bob" {
		t.Errorf("Expected host bob after transfer, got %s", updated.HostID)
	}
	if len(updated.Users) != 2 {
		t.Errorf("Expected 2 members left, got %d", len(updated.Users))
	}
}

func TestStore_LeaveRoom_LastOccupantDeletesRoom(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	alice := newTestSession("alice")
	room, err := env.store.CreateRoom(alice, "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := env.store.AddChat(room.RoomID, "alice", "hello"); err != nil {
		t.Fatalf("AddChat failed: %v", err)
	}

	if err := env.store.LeaveRoom(alice, "alice", room.RoomID); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}

	if _, exists := env.store.GetRoom(room.RoomID); exists {
		t.Error("Room should be deleted when the last occupant leaves")
	}
	if env.store.RoomCount() != 0 {
		t.Errorf("Expected 0 rooms, got %d", env.store.RoomCount())
	}
	if chats := env.store.Chats(room.RoomID); len(chats) != 0 {
		t.Errorf("Expected chat history deleted with the room, got %d entries", len(chats))
	}
}

func TestStore_LeaveRoom_NotInRoom(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	err = env.store.LeaveRoom(newTestSession("bob"), "bob", room.RoomID)
	if !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Expected ErrNotInRoom, got %v", err)
	}
}

func TestStore_LeaveRoom_MidRaceReset(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	alice := newTestSession("alice")
	room, err := env.store.CreateRoom(alice, "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	bob := newTestSession("bob")
	if _, err := env.store.JoinRoom(bob, "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if err := env.store.ChangeStatus(room.RoomID, StatusCountdown); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if err := env.store.ChangeStatus(room.RoomID, StatusPlaying); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if _, err := env.store.MarkFinished(room.RoomID, "alice"); err != nil {
		t.Fatalf("MarkFinished failed: %v", err)
	}

	if err := env.store.LeaveRoom(bob, "bob", room.RoomID); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}

	updated, exists := env.store.GetRoom(room.RoomID)
	if !exists {
		t.Fatal("Room should survive with one racer left")
	}
	if updated.RoomStatus != StatusWaiting {
		t.Errorf("Expected the race aborted back to waiting, got %s", updated.RoomStatus)
	}
	if updated.Users[0].IsFinished {
		t.Error("Expected finished flags cleared on reset")
	}

	// The fresh paragraph goes out asynchronously.
	env.broadcaster.waitForCall(t, "broadcast:"+room.RoomID+":"+network.EventResetRoom)
}

func TestStore_ResetRoom_OnlyFromResults(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if err := env.store.ChangeStatus(room.RoomID, StatusCountdown); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}

	// A countdown or a live race cannot be sent back to the lobby.
	if err := env.store.ResetRoom(room.RoomID); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed mid-countdown, got %v", err)
	}
	if err := env.store.ChangeStatus(room.RoomID, StatusPlaying); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if err := env.store.ResetRoom(room.RoomID); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed mid-race, got %v", err)
	}
	if updated, _ := env.store.GetRoom(room.RoomID); updated.RoomStatus != StatusPlaying {
		t.Errorf("Expected a rejected reset to leave the status untouched, got %s", updated.RoomStatus)
	}

	if _, err := env.store.MarkFinished(room.RoomID, "alice"); err != nil {
		t.Fatalf("MarkFinished failed: %v", err)
	}
	if err := env.store.ChangeStatus(room.RoomID, StatusResults); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if err := env.store.ResetRoom(room.RoomID); err != nil {
		t.Fatalf("ResetRoom from results failed: %v", err)
	}

	updated, _ := env.store.GetRoom(room.RoomID)
	if updated.RoomStatus != StatusWaiting {
		t.Errorf("Expected the room back in waiting, got %s", updated.RoomStatus)
	}
	for _, member := range updated.Users {
		if member.IsFinished {
			t.Errorf("Expected finished flags cleared, %s still set", member.UserID)
		}
	}
	env.broadcaster.waitForCall(t, "broadcast:"+room.RoomID+":"+network.EventResetRoom)
}

func TestStore_JoinNextAvailableRoom(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	env.store.AddUser("carol", "Carol", "")

	// No public room yet: matchmaking creates one.
	room1, err := env.store.JoinNextAvailableRoom(newTestSession("alice"), "alice")
	if err != nil {
		t.Fatalf("JoinNextAvailableRoom failed: %v", err)
	}
	if room1.RoomType != RoomTypePublic {
		t.Errorf("Expected a public room, got %s", room1.RoomType)
	}

	// The next caller lands in the same room.
	room2, err := env.store.JoinNextAvailableRoom(newTestSession("bob"), "bob")
	if err != nil {
		t.Fatalf("JoinNextAvailableRoom failed: %v", err)
	}
	if room2.RoomID != room1.RoomID {
		t.Errorf("Expected bob matched into %s, got %s", room1.RoomID, room2.RoomID)
	}

	// Room is now full (capacity 2): the third caller gets a fresh room.
	room3, err := env.store.JoinNextAvailableRoom(newTestSession("carol"), "carol")
	if err != nil {
		t.Fatalf("JoinNextAvailableRoom failed: %v", err)
	}
	if room3.RoomID == room1.RoomID {
		t.Error("Expected a new room once the first was full")
	}
}

func TestStore_JoinNextAvailableRoom_SkipsPrivate(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")

	room1, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	room2, err := env.store.JoinNextAvailableRoom(newTestSession("bob"), "bob")
	if err != nil {
		t.Fatalf("JoinNextAvailableRoom failed: %v", err)
	}
	if room2.RoomID == room1.RoomID {
		t.Error("Matchmaking must not place users into private rooms")
	}
}

func TestStore_ChangeStatus_TransitionTable(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	// waiting -> playing skips countdown and is rejected.
	if err := env.store.ChangeStatus(room.RoomID, StatusPlaying); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed, got %v", err)
	}

	for _, status := range []RoomStatus{StatusCountdown, StatusPlaying, StatusResults, StatusWaiting} {
		if err := env.store.ChangeStatus(room.RoomID, status); err != nil {
			t.Fatalf("Expected transition to %s allowed, got %v", status, err)
		}
	}

	// results -> waiting already happened; waiting -> results is off the table.
	if err := env.store.ChangeStatus(room.RoomID, StatusResults); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestStore_SetMaxUsers_BelowOccupancy(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	if err := env.store.SetMaxUsers(room.RoomID, 1); !errors.Is(err, ErrCapacityBelowOccupancy) {
		t.Errorf("Expected ErrCapacityBelowOccupancy, got %v", err)
	}
	if err := env.store.SetMaxUsers(room.RoomID, 4); err != nil {
		t.Errorf("Expected growing capacity to succeed, got %v", err)
	}
}

func TestStore_MarkFinished(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	env.store.AddUser("bob", "Bob", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if _, err := env.store.JoinRoom(newTestSession("bob"), "bob", room.RoomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	allFinished, err := env.store.MarkFinished(room.RoomID, "alice")
	if err != nil {
		t.Fatalf("MarkFinished failed: %v", err)
	}
	if allFinished {
		t.Error("Expected allFinished false with bob still racing")
	}

	allFinished, err = env.store.MarkFinished(room.RoomID, "bob")
	if err != nil {
		t.Fatalf("MarkFinished failed: %v", err)
	}
	if !allFinished {
		t.Error("Expected allFinished true once every member finished")
	}

	if _, err := env.store.MarkFinished(room.RoomID, "ghost"); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Expected ErrNotInRoom for a non-member, got %v", err)
	}
}

func TestStore_AddChat_TrimsHistory(t *testing.T) {
	env := newTestStore(10, 3)
	env.store.AddUser("alice", "Alice", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		if _, err := env.store.AddChat(room.RoomID, "alice", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("AddChat failed: %v", err)
		}
	}

	chats := env.store.Chats(room.RoomID)
	if len(chats) != 3 {
		t.Fatalf("Expected history trimmed to 3, got %d", len(chats))
	}
	if chats[0].Message != "message 3" || chats[2].Message != "message 5" {
		t.Errorf("Expected the oldest messages evicted, got %v", chats)
	}
	if chats[0].Username != "Alice" {
		t.Errorf("Expected chats stamped with the sender's username, got %q", chats[0].Username)
	}

	if got := env.store.Chats("no-such-room"); len(got) != 0 {
		t.Errorf("Expected empty history for an unknown room, got %v", got)
	}
}

func TestStore_StartCountdown_ReplacesExisting(t *testing.T) {
	env := newTestStore(10, 10)
	env.store.AddUser("alice", "Alice", "")
	room, err := env.store.CreateRoom(newTestSession("alice"), "alice", RoomTypePrivate)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	env.store.StartCountdown(room.RoomID, 3, TimerCountdown, time.Second, func(int, bool) {})
	first, exists := env.store.GetTimer(room.RoomID, TimerCountdown)
	if !exists {
		t.Fatal("Expected the countdown timer registered")
	}

	env.store.StartCountdown(room.RoomID, 3, TimerCountdown, time.Second, func(int, bool) {})
	second, _ := env.store.GetTimer(room.RoomID, TimerCountdown)
	if first == second {
		t.Fatal("Expected a replacement timer under the same key")
	}
	if first.IsRunning() {
		t.Error("Expected the replaced timer stopped")
	}
	if !second.IsRunning() {
		t.Error("Expected the replacement timer running")
	}

	env.store.DeleteTimer(room.RoomID, TimerCountdown)
	if second.IsRunning() {
		t.Error("Expected DeleteTimer to stop the timer")
	}
	if _, exists := env.store.GetTimer(room.RoomID, TimerCountdown); exists {
		t.Error("Expected the timer removed")
	}
}
