// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/typeracer/network"
)

// Session is the per-connection context: the authenticated user identity and
// the connection it arrived on. Handlers receive it explicitly; nothing about
// a connection lives in shared state.
type Session struct {
	ID        string
	Conn      network.Connection
	UserID    string
	Username  string
	Avatar    string
	CreatedAt time.Time

	mutex      sync.RWMutex
	roomID     string
	lastActive time.Time
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// SetRoomID records which room this session has joined ("" for none).
func (s *Session) SetRoomID(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

// LastActive reports when this session last sent traffic. Sends can come from
// the read loop and from timer callbacks at once, so the timestamp is guarded
// by the session mutex.
func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) Send(event string, payload interface{}) error {
	env, err := network.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	s.touch()
	return s.Conn.Send(env)
}

func (s *Session) SendVolatile(event string, payload interface{}) error {
	env, err := network.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return s.Conn.SendVolatile(env)
}

// Ack answers a client request identified by seq.
func (s *Session) Ack(seq uint32, status int, data interface{}, message string) error {
	payload := map[string]interface{}{"status": status}
	if data != nil {
		payload["data"] = data
	}
	if message != "" {
		payload["message"] = message
	}

	env, err := network.NewEnvelope(network.EventAck, payload)
	if err != nil {
		return err
	}
	env.Seq = seq
	s.touch()
	return s.Conn.Send(env)
}

// SendError emits a named error event to this session only.
func (s *Session) SendError(name, message string) error {
	return s.Send(network.EventError, network.ErrorPayload{Name: name, Message: message})
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager tracks all live sessions.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUserID(userID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, session := range m.sessions {
		if session.UserID == userID {
			return session, true
		}
	}
	return nil, false
}

// All returns a snapshot of every live session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
