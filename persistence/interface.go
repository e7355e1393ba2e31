// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/typeracer/models"
)

// RaceHistory records finished races. Live room state is never persisted; a
// restart loses in-flight races.
type RaceHistory interface {
	SaveRaceRecord(record *models.RaceRecord) error
	RecentRaceRecords(roomID string, limit int) ([]models.RaceRecord, error)
	Close() error
}

var ErrRecordNotFound = fmt.Errorf("record not found")
