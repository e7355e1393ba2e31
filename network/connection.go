package network

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// Envelope is the wire frame for every message in either direction.
// Seq is set on client requests that expect an acknowledgement; the
// matching ack echoes it back.
type Envelope struct {
	Event string          `json:"event"`
	Seq   uint32          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. Marshal failures are a
// programming error on our own payload types.
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return env, nil
}

type Connection interface {
	Send(env *Envelope) error
	// SendVolatile may silently drop the frame when the connection is busy.
	// Used for non-final progress ticks where a denser follow-up is expected.
	SendVolatile(env *Envelope) error
	ReadEnvelope() (*Envelope, error)
	Close() error
	RemoteAddr() net.Addr
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(env *Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *WSConnection) SendVolatile(env *Envelope) error {
	if !c.sendMutex.TryLock() {
		// Another write is in flight; drop this frame.
		return nil
	}
	defer c.sendMutex.Unlock()

	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *WSConnection) ReadEnvelope() (*Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *WSConnection) Close() error {
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
