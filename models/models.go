// models/models.go
package models

import (
	"time"
)

// Standing is one player's final placement in a race.
type Standing struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
	Finished bool    `json:"finished"`
}

// RaceRecord is the persisted outcome of one finished race.
type RaceRecord struct {
	RoomID    string     `json:"room_id"`
	Paragraph string     `json:"paragraph"`
	Standings []Standing `json:"standings"`
	CreatedAt time.Time  `json:"created_at"`
}
