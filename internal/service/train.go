package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/arima"
	"github.com/kjstillabower/weather-analytics-service/internal/classify"
	"github.com/kjstillabower/weather-analytics-service/internal/dataset"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/observability"
)

// ErrNoTemperatures is returned when the history has no temperature values to model.
var ErrNoTemperatures = errors.New("no temperature values in historical data")

// TrainOptions configures one training run.
type TrainOptions struct {
	Order        models.ARIMAOrder
	TestFraction float64
	Steps        int
}

// DefaultTrainOptions are the settings used by the HTTP training endpoint.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Order:        arima.DefaultOrder,
		TestFraction: arima.DefaultTestFraction,
		Steps:        arima.ForecastSteps,
	}
}

// TrainModels fits the temperature forecaster and both weather-type
// classifiers on records. Model failures degrade to fallback values recorded
// in Warnings; only a history without temperatures is an error. The returned
// classifier is nil when no split was possible.
func TrainModels(ctx context.Context, city string, records []models.WeatherRecord, opts TrainOptions, logger *zap.Logger) (models.ModelResult, *classify.Classifier, error) {
	logger = observability.LoggerFromContext(ctx, logger)
	if opts.Steps <= 0 {
		opts.Steps = arima.ForecastSteps
	}

	temps := dataset.Temperatures(records)
	if len(temps) == 0 {
		return models.ModelResult{}, nil, ErrNoTemperatures
	}

	result := models.ModelResult{
		City:       city,
		ARIMAOrder: opts.Order.Slice(),
		TrainedAt:  time.Now().UTC(),
	}
	result.TemperatureForecast, result.ARIMAEvaluation = forecastTemperature(temps, opts, &result, logger)

	clf := trainClassifiers(records, &result, logger)

	logger.Info("models trained",
		zap.String("city", city),
		zap.Int("records", len(records)),
		zap.Ints("arima_order", result.ARIMAOrder),
		zap.Float64("lr_accuracy", result.LogisticRegression.Accuracy),
		zap.Float64("dt_accuracy", result.DecisionTree.Accuracy),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, clf, nil
}

// forecastTemperature fits on the training portion and forecasts from its end.
// The hold-out error is reported when the model fits and a test portion exists.
func forecastTemperature(temps []float64, opts TrainOptions, result *models.ModelResult, logger *zap.Logger) ([]float64, *models.ForecastErrors) {
	train, test := arima.TrainTestSplit(temps, opts.TestFraction)

	var f arima.Forecaster
	fitErr := f.Fit(train, opts.Order)
	forecast, err := f.Forecast(opts.Steps)
	if fitErr != nil || err != nil {
		if fitErr != nil {
			err = fitErr
		}
		logger.Warn("temperature model fit failed, using fallback series", zap.Error(err))
		observability.ForecastFallbackTotal.WithLabelValues("arima").Inc()
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("temperature model could not be fitted (%v); forecast is a fallback series", err))
		return arima.FallbackSeries(temps[len(temps)-1], opts.Steps), nil
	}

	if len(test) == 0 {
		return forecast, nil
	}
	predicted := f.Model().Forecast(len(test))
	errs, err := arima.Evaluate(test, predicted)
	if err != nil {
		logger.Debug("hold-out evaluation skipped", zap.Error(err))
		return forecast, nil
	}
	return forecast, &errs
}

func trainClassifiers(records []models.WeatherRecord, result *models.ModelResult, logger *zap.Logger) *classify.Classifier {
	X, y := dataset.Matrix(records)
	split, err := classify.SplitStratified(X, y, classify.TestFraction(len(X)), classify.DefaultSeed)
	if err != nil {
		logger.Warn("classifier split failed", zap.Int("rows", len(X)), zap.Error(err))
		for _, m := range classify.Models {
			estimate(result, m, fmt.Sprintf("%s not evaluated: %v", m, err))
		}
		return nil
	}

	clf := classify.New(dataset.ClassifierFeatures)
	if err := clf.Fit(split.XTrain, split.YTrain); err != nil {
		logger.Warn("classifier fit failed", zap.Error(err))
	}

	result.FeatureImportance = map[string][]models.FeatureImportance{}
	skipped := clf.Skipped()
	for _, m := range classify.Models {
		report, err := clf.Evaluate(split.XTest, split.YTest, m)
		if err != nil {
			reason := err.Error()
			if r, ok := skipped[m]; ok {
				reason = r
			}
			estimate(result, m, fmt.Sprintf("%s not evaluated (%s); metrics are estimates", m, reason))
			continue
		}
		setMetrics(result, m, classify.Metrics(report))
		logger.Debug("classifier evaluated",
			zap.String("model", string(m)),
			zap.Bool("stratified", split.Stratified),
			zap.String("report", report.String()),
		)
		if imp, err := clf.FeatureImportance(m); err == nil {
			result.FeatureImportance[string(m)] = imp
		}
	}
	if len(result.FeatureImportance) == 0 {
		result.FeatureImportance = nil
	}
	return clf
}

func estimate(result *models.ModelResult, m classify.Model, warning string) {
	observability.EvaluationFallbackTotal.WithLabelValues(string(m)).Inc()
	setMetrics(result, m, classify.EstimatedMetrics(m))
	result.Warnings = append(result.Warnings, warning)
}

func setMetrics(result *models.ModelResult, m classify.Model, metrics models.ClassifierMetrics) {
	if m == classify.DecisionTree {
		result.DecisionTree = metrics
	} else {
		result.LogisticRegression = metrics
	}
}
