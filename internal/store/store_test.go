package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func result(city string, at time.Time, lrAcc float64) models.ModelResult {
	return models.ModelResult{
		City:                city,
		ARIMAOrder:          []int{1, 1, 1},
		TemperatureForecast: []float64{1, 2, 3, 4, 5, 6, 7},
		ARIMAEvaluation:     &models.ForecastErrors{MAE: 1, MSE: 2, RMSE: 1.4},
		LogisticRegression:  models.ClassifierMetrics{Accuracy: lrAcc},
		DecisionTree:        models.ClassifierMetrics{Accuracy: 0.9},
		TrainedAt:           at,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != len(migrations) {
		t.Errorf("applied %d migrations, want %d", n, len(migrations))
	}
}

func TestSaveRunAndRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, city := range []string{"beijing", "shanghai", "beijing"} {
		if _, err := s.SaveRun(ctx, result(city, base.Add(time.Duration(i)*time.Hour), float64(i)/10)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	all, err := s.Runs(ctx, "", 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if !all[0].TrainedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("newest first: got %v", all[0].TrainedAt)
	}

	beijing, err := s.Runs(ctx, "beijing", 10)
	if err != nil {
		t.Fatalf("Runs(beijing): %v", err)
	}
	if len(beijing) != 2 {
		t.Errorf("len(beijing) = %d, want 2", len(beijing))
	}

	latest, err := s.LatestRun(ctx, "beijing")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.Result.LogisticRegression.Accuracy != 0.2 {
		t.Errorf("latest accuracy = %v, want 0.2", latest.Result.LogisticRegression.Accuracy)
	}
	if latest.Result.ARIMAEvaluation == nil || latest.Result.ARIMAEvaluation.RMSE != 1.4 {
		t.Errorf("evaluation not round-tripped: %+v", latest.Result.ARIMAEvaluation)
	}
}

func TestLatestRun_NotFound(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.LatestRun(context.Background(), "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRuns_Limit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.SaveRun(ctx, result("beijing", time.Time{}, 0.5)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	runs, err := s.Runs(ctx, "beijing", 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("len = %d, want 2", len(runs))
	}
}
