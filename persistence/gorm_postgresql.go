// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/typeracer/models"
)

// GormPostgreSQL is the GORM-backed race history.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormRaceRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (g *GormPostgreSQL) SaveRaceRecord(record *models.RaceRecord) error {
	standings, err := json.Marshal(record.Standings)
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}

	row := models.GormRaceRecord{
		RoomID:    record.RoomID,
		Paragraph: record.Paragraph,
		Standings: standings,
		CreatedAt: record.CreatedAt,
	}
	return g.db.Create(&row).Error
}

func (g *GormPostgreSQL) RecentRaceRecords(roomID string, limit int) ([]models.RaceRecord, error) {
	var rows []models.GormRaceRecord
	err := g.db.
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.RaceRecord, 0, len(rows))
	for _, row := range rows {
		record := models.RaceRecord{
			RoomID:    row.RoomID,
			Paragraph: row.Paragraph,
			CreatedAt: row.CreatedAt,
		}
		if err := json.Unmarshal(row.Standings, &record.Standings); err != nil {
			return nil, fmt.Errorf("unmarshal standings: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (g *GormPostgreSQL) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
