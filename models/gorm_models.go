// models/gorm_models.go
package models

import (
	"time"
)

// GormRaceRecord is the GORM mapping for race history. Standings are stored
// as a JSON blob; the service layer owns the marshalling.
type GormRaceRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"index;not null"`
	Paragraph string `gorm:"not null"`
	Standings []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (GormRaceRecord) TableName() string {
	return "race_records"
}
