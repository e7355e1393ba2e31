// services/results_service.go
package services

import (
	"time"

	"github.com/wfunc/typeracer/models"
	"github.com/wfunc/typeracer/persistence"
)

// ResultsService writes finished races to the configured history backend.
type ResultsService struct {
	history persistence.RaceHistory
}

func NewResultsService(history persistence.RaceHistory) *ResultsService {
	return &ResultsService{history: history}
}

// RecordRace persists one race outcome.
func (s *ResultsService) RecordRace(roomID, paragraph string, standings []models.Standing) error {
	record := &models.RaceRecord{
		RoomID:    roomID,
		Paragraph: paragraph,
		Standings: standings,
		CreatedAt: time.Now(),
	}
	return s.history.SaveRaceRecord(record)
}

// RecentForRoom returns the room's most recent race outcomes, newest first.
func (s *ResultsService) RecentForRoom(roomID string, limit int) ([]models.RaceRecord, error) {
	return s.history.RecentRaceRecords(roomID, limit)
}
