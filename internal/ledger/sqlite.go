package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jimbolo/convtrack/pkg/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLite is a Ledger persisted to a SQLite file.
type SQLite struct {
	db  *sql.DB
	ids idGenerator
}

// NewSQLite opens (creating if needed) the ledger database at path.
func NewSQLite(path string, nodeID int64) (*SQLite, error) {
	ids, err := newIDGenerator(nodeID)
	if err != nil {
		return nil, err
	}
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, ids: ids}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS conversions(
	  id               INTEGER PRIMARY KEY,
	  event_id         TEXT    NOT NULL,
	  source           TEXT    NOT NULL,
	  payload_json     TEXT    NOT NULL CHECK (json_valid(payload_json)),
	  confidence_score REAL    NOT NULL,
	  recorded_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversions_recorded ON conversions(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, rec models.ConversionRecord) (models.ConversionRecord, error) {
	rec = s.ids.stamp(rec)
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal conversion payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversions(id, event_id, source, payload_json, confidence_score, recorded_at) VALUES(?,?,?,?,?,?)`,
		rec.ID, rec.EventID, string(rec.Source), string(payload), rec.ConfidenceScore, rec.RecordedAt.UnixMilli())
	if err != nil {
		return rec, fmt.Errorf("failed to insert conversion record: %w", err)
	}
	return rec, nil
}

func (s *SQLite) List(ctx context.Context) ([]models.ConversionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, source, payload_json, confidence_score, recorded_at FROM conversions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion records: %w", err)
	}
	defer rows.Close()

	var out []models.ConversionRecord
	for rows.Next() {
		var (
			rec        models.ConversionRecord
			source     string
			payload    string
			recordedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &source, &payload, &rec.ConfidenceScore, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion record: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of record %d: %w", rec.ID, err)
		}
		rec.Source = models.Source(source)
		rec.RecordedAt = time.UnixMilli(recordedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversion records: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
