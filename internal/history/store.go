// Package history persists accepted detector results to SQLite.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rommelskii/foundation/internal/detector"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	detections TEXT NOT NULL DEFAULT '[]',
	source_width INTEGER DEFAULT 0,
	source_height INTEGER DEFAULT 0,
	received_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_received_at ON results(received_at);
`

const (
	queryInsert = `
		INSERT INTO results (seq, kind, detections, source_width, source_height, received_at)
		VALUES (:seq, :kind, :detections, :source_width, :source_height, :received_at)`
	queryRecent = `
		SELECT id, seq, kind, detections, source_width, source_height, received_at
		FROM results ORDER BY id DESC LIMIT ?`
	queryPrune = `
		DELETE FROM results WHERE id NOT IN (SELECT id FROM results ORDER BY id DESC LIMIT ?)`
	queryCount = `SELECT COUNT(*) FROM results`
)

// Record is one stored result. Image results keep only their metadata.
type Record struct {
	ID           int64                `db:"id" json:"id"`
	Seq          int64                `db:"seq" json:"seq"`
	Kind         string               `db:"kind" json:"kind"`
	Detections   []detector.Detection `db:"-" json:"detections"`
	RawJSON      string               `db:"detections" json:"-"`
	SourceWidth  int                  `db:"source_width" json:"source_width"`
	SourceHeight int                  `db:"source_height" json:"source_height"`
	ReceivedAt   time.Time            `db:"received_at" json:"received_at"`
}

// NewRecord builds a record from an accepted result.
func NewRecord(seq uint64, res detector.Result) Record {
	received := res.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	return Record{
		Seq:          int64(seq),
		Kind:         res.Kind.String(),
		Detections:   res.Detections,
		SourceWidth:  res.Source.X,
		SourceHeight: res.Source.Y,
		ReceivedAt:   received.UTC(),
	}
}

// Store is a SQLite-backed result log.
type Store struct {
	db    *sqlx.DB
	limit int
}

// Open opens (creating if needed) the database at path. limit caps the
// number of rows kept; zero keeps everything.
func Open(path string, limit int) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, limit: limit}, nil
}

// Insert stores rec and trims the table to the configured limit.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	dets := rec.Detections
	if dets == nil {
		dets = []detector.Detection{}
	}
	raw, err := json.Marshal(dets)
	if err != nil {
		return fmt.Errorf("failed to marshal detections: %w", err)
	}
	rec.RawJSON = string(raw)

	if _, err := s.db.NamedExecContext(ctx, queryInsert, rec); err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	if s.limit > 0 {
		if _, err := s.db.ExecContext(ctx, queryPrune, s.limit); err != nil {
			return fmt.Errorf("failed to prune results: %w", err)
		}
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	var recs []Record
	if err := s.db.SelectContext(ctx, &recs, queryRecent, n); err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	for i := range recs {
		if err := json.Unmarshal([]byte(recs[i].RawJSON), &recs[i].Detections); err != nil {
			return nil, fmt.Errorf("failed to decode detections for result %d: %w", recs[i].ID, err)
		}
	}
	return recs, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, queryCount); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
