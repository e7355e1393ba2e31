// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wfunc/typeracer/models"
)

// PostgreSQL is the plain database/sql race history.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS race_records (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            paragraph TEXT NOT NULL,
            standings JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_race_records_room_id ON race_records (room_id)`)
	return err
}

func (p *PostgreSQL) SaveRaceRecord(record *models.RaceRecord) error {
	standings, err := json.Marshal(record.Standings)
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}

	_, err = p.db.Exec(
		`INSERT INTO race_records (room_id, paragraph, standings, created_at) VALUES ($1, $2, $3, $4)`,
		record.RoomID, record.Paragraph, standings, record.CreatedAt,
	)
	return err
}

func (p *PostgreSQL) RecentRaceRecords(roomID string, limit int) ([]models.RaceRecord, error) {
	rows, err := p.db.Query(
		`SELECT room_id, paragraph, standings, created_at FROM race_records
         WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.RaceRecord
	for rows.Next() {
		var record models.RaceRecord
		var standings []byte
		if err := rows.Scan(&record.RoomID, &record.Paragraph, &standings, &record.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(standings, &record.Standings); err != nil {
			return nil, fmt.Errorf("unmarshal standings: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
