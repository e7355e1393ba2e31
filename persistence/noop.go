// persistence/noop.go
package persistence

import (
	"github.com/wfunc/typeracer/models"
)

// NoopHistory discards race records. Used when no database is configured.
type NoopHistory struct{}

func NewNoopHistory() *NoopHistory {
	return &NoopHistory{}
}

func (n *NoopHistory) SaveRaceRecord(record *models.RaceRecord) error {
	return nil
}

func (n *NoopHistory) RecentRaceRecords(roomID string, limit int) ([]models.RaceRecord, error) {
	return nil, nil
}

func (n *NoopHistory) Close() error {
	return nil
}
