// Package db keeps the training and prediction history in SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRuns is returned by LatestTrainingRun on an empty history.
var ErrNoRuns = errors.New("no training runs recorded")

const schema = `
    CREATE TABLE IF NOT EXISTS training_runs (
        id TEXT PRIMARY KEY,
        model_path TEXT NOT NULL,
        dataset_path TEXT NOT NULL,
        train_rows INTEGER NOT NULL,
        test_rows INTEGER NOT NULL,
        train_r2 REAL,
        test_r2 REAL,
        test_mae REAL,
        test_rmse REAL,
        neighbors INTEGER NOT NULL,
        weights TEXT NOT NULL,
        dropped TEXT NOT NULL DEFAULT '[]',
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        value REAL,
        kind TEXT NOT NULL DEFAULT '',
        detail TEXT NOT NULL DEFAULT '',
        field TEXT NOT NULL DEFAULT '',
        cached INTEGER NOT NULL DEFAULT 0,
        input TEXT NOT NULL DEFAULT '{}',
        latency_ms REAL NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    `

// Store wraps the SQLite handle. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// TrainingRun is one completed build of the pipeline.
type TrainingRun struct {
	ID          string    `json:"id"`
	ModelPath   string    `json:"model_path"`
	DatasetPath string    `json:"dataset_path"`
	TrainRows   int       `json:"train_rows"`
	TestRows    int       `json:"test_rows"`
	TrainR2     float64   `json:"train_r2"`
	TestR2      float64   `json:"test_r2"`
	TestMAE     float64   `json:"test_mae"`
	TestRMSE    float64   `json:"test_rmse"`
	Neighbors   int       `json:"neighbors"`
	Weights     string    `json:"weights"`
	Dropped     []string  `json:"dropped,omitempty"`
	TrainedAt   time.Time `json:"trained_at"`
}

// PredictionLog is one served prediction request.
type PredictionLog struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Value     *float64        `json:"value,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Field     string          `json:"field,omitempty"`
	Cached    bool            `json:"cached"`
	Input     json.RawMessage `json:"input,omitempty"`
	LatencyMS float64         `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps sqlite from returning SQLITE_BUSY
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrainingRun records run. A zero TrainedAt is set to now.
func (s *Store) SaveTrainingRun(ctx context.Context, run TrainingRun) error {
	if run.ID == "" {
		return errors.New("training run id required")
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now()
	}
	dropped, err := json.Marshal(nonNil(run.Dropped))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO training_runs (
            id, model_path, dataset_path, train_rows, test_rows,
            train_r2, test_r2, test_mae, test_rmse, neighbors, weights, dropped, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelPath, run.DatasetPath, run.TrainRows, run.TestRows,
		run.TrainR2, run.TestR2, run.TestMAE, run.TestRMSE, run.Neighbors, run.Weights,
		string(dropped), run.TrainedAt.UTC())
	return err
}

// LatestTrainingRun returns the most recent run or ErrNoRuns.
func (s *Store) LatestTrainingRun(ctx context.Context) (*TrainingRun, error) {
	var (
		run     TrainingRun
		dropped string
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT id, model_path, dataset_path, train_rows, test_rows,
               train_r2, test_r2, test_mae, test_rmse, neighbors, weights, dropped, trained_at
        FROM training_runs
        ORDER BY trained_at DESC
        LIMIT 1`).Scan(&run.ID, &run.ModelPath, &run.DatasetPath, &run.TrainRows, &run.TestRows,
		&run.TrainR2, &run.TestR2, &run.TestMAE, &run.TestRMSE, &run.Neighbors, &run.Weights,
		&dropped, &run.TrainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dropped), &run.Dropped); err != nil {
		return nil, fmt.Errorf("training run %s: dropped columns: %w", run.ID, err)
	}
	if len(run.Dropped) == 0 {
		run.Dropped = nil
	}
	return &run, nil
}

// SavePrediction records one prediction. A zero CreatedAt is set to now.
func (s *Store) SavePrediction(ctx context.Context, p PredictionLog) error {
	if p.ID == "" {
		return errors.New("prediction id required")
	}
	if p.Status == "" {
		return errors.New("prediction status required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	input := p.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var value sql.NullFloat64
	if p.Value != nil {
		value = sql.NullFloat64{Float64: *p.Value, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            id, status, value, kind, detail, field, cached, input, latency_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Status, value, p.Kind, p.Detail, p.Field, p.Cached, string(input),
		p.LatencyMS, p.CreatedAt.UTC())
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, status, value, kind, detail, field, cached, input, latency_ms, created_at
        FROM predictions
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]PredictionLog, 0)
	for rows.Next() {
		var (
			p     PredictionLog
			value sql.NullFloat64
			input string
		)
		if err := rows.Scan(&p.ID, &p.Status, &value, &p.Kind, &p.Detail, &p.Field,
			&p.Cached, &input, &p.LatencyMS, &p.CreatedAt); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.Float64
			p.Value = &v
		}
		p.Input = json.RawMessage(input)
		logs = append(logs, p)
	}
	return logs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
