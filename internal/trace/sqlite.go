package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/airshape/optimizer-core/pkg/logger"
)

// SQLiteStore persists evaluation points for post-run analysis. It implements
// Recorder; persistence errors are logged and swallowed so a broken disk never
// interrupts an expensive optimization run.
type SQLiteStore struct {
	path  string
	runID string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore creates a store writing to the database at path under the
// given run ID.
func NewSQLiteStore(path, runID string) *SQLiteStore {
	return &SQLiteStore{path: path, runID: runID}
}

// Init opens the database and creates the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS evaluations (
			run_id  TEXT NOT NULL,
			idx     INTEGER NOT NULL,
			stage   TEXT NOT NULL,
			loss    REAL NOT NULL,
			failed  INTEGER NOT NULL,
			at      TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, idx)
		);
	`)
	if err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Record implements Recorder.
func (s *SQLiteStore) Record(p Point) {
	if err := s.SavePoint(context.Background(), p); err != nil {
		logger.Warn("failed to persist evaluation point", "index", p.Index, "error", err)
	}
}

// SavePoint writes one evaluation point.
func (s *SQLiteStore) SavePoint(ctx context.Context, p Point) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode point %d: %w", p.Index, err)
	}

	failed := 0
	if p.Failed {
		failed = 1
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO evaluations (run_id, idx, stage, loss, failed, at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			stage = excluded.stage,
			loss = excluded.loss,
			failed = excluded.failed,
			at = excluded.at,
			payload = excluded.payload
	`, s.runID, p.Index, p.Stage, p.Loss, failed, p.At.UTC().Format("2006-01-02T15:04:05.000Z"), payload)
	return err
}

// ListPoints returns all persisted points of the store's run in index order.
func (s *SQLiteStore) ListPoints(ctx context.Context) ([]Point, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT payload FROM evaluations WHERE run_id = ? ORDER BY idx`, s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p Point
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}
