// Package store persists training runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// ErrNotFound is returned by LatestRun when no run matches.
var ErrNotFound = errors.New("store: no training run")

// Run is one persisted training run.
type Run struct {
	ID        int64              `json:"id"`
	City      string             `json:"city"`
	TrainedAt time.Time          `json:"trained_at"`
	Result    models.ModelResult `json:"result"`
}

// Store records training runs.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts a training run and returns its id.
func (s *Store) SaveRun(ctx context.Context, result models.ModelResult) (int64, error) {
	blob, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("encode result: %w", err)
	}
	trainedAt := result.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now()
	}
	var rmse sql.NullFloat64
	if result.ARIMAEvaluation != nil {
		rmse = sql.NullFloat64{Float64: result.ARIMAEvaluation.RMSE, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO training_runs (city, trained_at, arima_order, lr_accuracy, dt_accuracy, estimated, arima_rmse, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.City, trainedAt.UTC().Format(time.RFC3339Nano), formatOrder(result.ARIMAOrder),
		result.LogisticRegression.Accuracy, result.DecisionTree.Accuracy,
		result.LogisticRegression.Estimated || result.DecisionTree.Estimated,
		rmse, string(blob))
	if err != nil {
		return 0, fmt.Errorf("insert training run: %w", err)
	}
	return res.LastInsertId()
}

// Runs returns up to limit runs, newest first. An empty city matches all cities.
func (s *Store) Runs(ctx context.Context, city string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, city, trained_at, result_json FROM training_runs`
	args := []interface{}{}
	if city != "" {
		query += ` WHERE city = ?`
		args = append(args, city)
	}
	query += ` ORDER BY trained_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run for city, or ErrNotFound.
func (s *Store) LatestRun(ctx context.Context, city string) (Run, error) {
	runs, err := s.Runs(ctx, city, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNotFound
	}
	return runs[0], nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run       Run
		trainedAt string
		blob      string
	)
	if err := rows.Scan(&run.ID, &run.City, &trainedAt, &blob); err != nil {
		return Run{}, fmt.Errorf("scan training run: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, trainedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse trained_at %q: %w", trainedAt, err)
	}
	run.TrainedAt = t
	if err := json.Unmarshal([]byte(blob), &run.Result); err != nil {
		return Run{}, fmt.Errorf("decode run %d: %w", run.ID, err)
	}
	return run, nil
}

func formatOrder(order []int) string {
	parts := make([]string, len(order))
	for i, v := range order {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
