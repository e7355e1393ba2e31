// Bot client for exercising the server by hand: connects, joins public
// matchmaking and types the paragraph at a fixed pace once the race starts.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Seq   uint32          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var seq uint32

func send(c *websocket.Conn, event string, payload interface{}) error {
	seq++
	env := envelope{Event: event, Seq: seq}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	username := flag.String("username", "bot", "username to race as")
	wpm := flag.Int("wpm", 60, "typing speed in words per minute")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/ws",
		RawQuery: url.Values{"username": {*username}}.Encode(),
	}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	var userID, roomID, paragraph string
	done := make(chan struct{})
	raceStart := make(chan struct{}, 1)

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			var env envelope
			if err := json.Unmarshal(message, &env); err != nil {
				log.Printf("Received invalid frame: %s", string(message))
				continue
			}
			log.Printf("<- RECV %s: %s", env.Event, string(env.Data))

			switch env.Event {
			case "send_user_info":
				var info struct {
					UserID string `json:"user_id"`
				}
				json.Unmarshal(env.Data, &info)
				userID = info.UserID
			case "ack":
				var ack struct {
					Status int             `json:"status"`
					Data   json.RawMessage `json:"data"`
				}
				json.Unmarshal(env.Data, &ack)
				if ack.Status != 200 || ack.Data == nil {
					continue
				}
				var room struct {
					RoomID          string `json:"room_id"`
					ParagraphToType string `json:"paragraph_to_type"`
				}
				if json.Unmarshal(ack.Data, &room) == nil && room.RoomID != "" {
					roomID = room.RoomID
					paragraph = room.ParagraphToType
				}
			case "reset_room":
				var reset struct {
					ParagraphToType string `json:"paragraph_to_type"`
				}
				json.Unmarshal(env.Data, &reset)
				paragraph = reset.ParagraphToType
			case "countdown_finished":
				select {
				case raceStart <- struct{}{}:
				default:
				}
			}
		}
	}()

	// Give send_user_info a moment to arrive, then matchmake.
	time.Sleep(200 * time.Millisecond)
	log.Println("Joining next available room...")
	if err := send(c, "join_room", map[string]string{"room_id": ""}); err != nil {
		log.Fatalf("Write error: %v", err)
	}

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case <-raceStart:
			race(c, userID, roomID, paragraph, *wpm)
		}
	}
}

// race types the paragraph word by word at the requested pace, reporting
// progress after every word.
func race(c *websocket.Conn, userID, roomID, paragraph string, wpm int) {
	words := strings.Fields(paragraph)
	if len(words) == 0 {
		return
	}
	interval := time.Minute / time.Duration(wpm)
	start := time.Now()

	for i, word := range words {
		time.Sleep(interval)
		finished := i == len(words)-1
		elapsed := time.Since(start).Minutes()
		payload := map[string]interface{}{
			"room_id": roomID,
			"user_id": userID,
			"progress": map[string]interface{}{
				"typed_word": word,
				"progress":   (i + 1) * 100 / len(words),
				"wpm":        float64(i+1) / elapsed,
				"accuracy":   100.0,
			},
			"is_finished": finished,
		}
		if err := send(c, "send_progress", payload); err != nil {
			log.Println("Write error:", err)
			return
		}
	}
	log.Println("-> Finished the paragraph")
}
