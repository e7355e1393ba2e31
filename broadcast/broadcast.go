// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/typeracer/logger"
	"github.com/wfunc/typeracer/network"
	"github.com/wfunc/typeracer/session"

	"sync"
)

// Manager fans events out to the sessions joined to a room's broadcast group.
// Group membership is tracked here, not on the room record, so broadcasting
// never reads mutable room state.
type Manager struct {
	sessions *session.Manager
	groups   map[string]map[string]*session.Session // roomID -> sessionID -> session
	mutex    sync.RWMutex
}

func NewManager(sessions *session.Manager) *Manager {
	return &Manager{
		sessions: sessions,
		groups:   make(map[string]map[string]*session.Session),
	}
}

// Join adds a session to a room's broadcast group.
func (m *Manager) Join(roomID string, sess *session.Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	group, exists := m.groups[roomID]
	if !exists {
		group = make(map[string]*session.Session)
		m.groups[roomID] = group
	}
	group[sess.ID] = sess
	sess.SetRoomID(roomID)
}

// Leave removes a session from a room's broadcast group; empty groups are
// dropped.
func (m *Manager) Leave(roomID, sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	group, exists := m.groups[roomID]
	if !exists {
		return
	}
	if sess, ok := group[sessionID]; ok {
		sess.SetRoomID("")
	}
	delete(group, sessionID)
	if len(group) == 0 {
		delete(m.groups, roomID)
	}
}

func (m *Manager) members(roomID string) []*session.Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	group := m.groups[roomID]
	result := make([]*session.Session, 0, len(group))
	for _, sess := range group {
		result = append(result, sess)
	}
	return result
}

func (m *Manager) BroadcastToRoom(roomID, event string, payload interface{}) {
	for _, sess := range m.members(roomID) {
		if err := sess.Send(event, payload); err != nil {
			logger.Log.Debugf("broadcast %s to session %s failed: %v", event, sess.ID, err)
		}
	}
}

// BroadcastToRoomExcept skips one session, typically the one whose request is
// already answered through an acknowledgement.
func (m *Manager) BroadcastToRoomExcept(roomID, exceptSessionID, event string, payload interface{}) {
	for _, sess := range m.members(roomID) {
		if sess.ID == exceptSessionID {
			continue
		}
		if err := sess.Send(event, payload); err != nil {
			logger.Log.Debugf("broadcast %s to session %s failed: %v", event, sess.ID, err)
		}
	}
}

// BroadcastToRoomVolatile sends droppable frames, used for non-final progress
// ticks where the next update supersedes a lost one.
func (m *Manager) BroadcastToRoomVolatile(roomID, event string, payload interface{}) {
	for _, sess := range m.members(roomID) {
		if err := sess.SendVolatile(event, payload); err != nil {
			logger.Log.Debugf("volatile broadcast %s to session %s failed: %v", event, sess.ID, err)
		}
	}
}

// BroadcastToAll reaches every live session, in a room or not.
func (m *Manager) BroadcastToAll(event string, payload interface{}) {
	for _, sess := range m.sessions.All() {
		if err := sess.Send(event, payload); err != nil {
			logger.Log.Debugf("broadcast %s to session %s failed: %v", event, sess.ID, err)
		}
	}
}

// BroadcastError emits a named error event to every live session.
func (m *Manager) BroadcastError(name, message string) {
	m.BroadcastToAll(network.EventError, network.ErrorPayload{Name: name, Message: message})
}
