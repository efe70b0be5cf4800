// Package state holds the process-wide analytics state: the last collected
// history, the trained model results and the last forecast.
package state

import (
	"sync"

	"github.com/kjstillabower/weather-analytics-service/internal/classify"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// Snapshot is a point-in-time copy of the state. Classifier is shared, not
// copied; it is read-only once fitted.
type Snapshot struct {
	City        string
	History     []models.WeatherRecord
	ModelResult *models.ModelResult
	Classifier  *classify.Classifier
	Forecast    *models.ForecastBundle
}

// HasData reports whether historical data has been collected.
func (s Snapshot) HasData() bool { return len(s.History) > 0 }

// HasModel reports whether a model has been trained.
func (s Snapshot) HasModel() bool { return s.ModelResult != nil }

// HasForecast reports whether a forecast is available.
func (s Snapshot) HasForecast() bool { return s.Forecast != nil }

// Store holds the analytics state. Every setter replaces the previous value.
type Store interface {
	Snapshot() Snapshot
	SetHistory(city string, records []models.WeatherRecord)
	SetModel(result models.ModelResult, clf *classify.Classifier)
	SetForecast(bundle models.ForecastBundle)
	Clear()
}

// MemoryStore is a Store guarded by a RWMutex. Reads return copies.
type MemoryStore struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySnapshot(m.snap)
}

// SetHistory replaces the history and city. Model results trained on the
// previous history are kept until the next training run.
func (m *MemoryStore) SetHistory(city string, records []models.WeatherRecord) {
	history := append([]models.WeatherRecord(nil), records...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.City = city
	m.snap.History = history
}

func (m *MemoryStore) SetModel(result models.ModelResult, clf *classify.Classifier) {
	r := copyResult(&result)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.ModelResult = r
	m.snap.Classifier = clf
}

func (m *MemoryStore) SetForecast(bundle models.ForecastBundle) {
	b := copyBundle(&bundle)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Forecast = b
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{}
}

func copySnapshot(s Snapshot) Snapshot {
	out := Snapshot{City: s.City, Classifier: s.Classifier}
	if s.History != nil {
		out.History = append([]models.WeatherRecord(nil), s.History...)
	}
	out.ModelResult = copyResult(s.ModelResult)
	out.Forecast = copyBundle(s.Forecast)
	return out
}

func copyBundle(b *models.ForecastBundle) *models.ForecastBundle {
	if b == nil {
		return nil
	}
	c := models.ForecastBundle{
		AITemperature: append([]float64(nil), b.AITemperature...),
		AIWeather:     append([]models.WeatherType(nil), b.AIWeather...),
		Official:      make([]map[string]interface{}, len(b.Official)),
	}
	for i, day := range b.Official {
		m := make(map[string]interface{}, len(day))
		for k, v := range day {
			m[k] = v
		}
		c.Official[i] = m
	}
	return &c
}

func copyResult(r *models.ModelResult) *models.ModelResult {
	if r == nil {
		return nil
	}
	c := *r
	c.ARIMAOrder = append([]int(nil), r.ARIMAOrder...)
	c.TemperatureForecast = append([]float64(nil), r.TemperatureForecast...)
	c.Warnings = append([]string(nil), r.Warnings...)
	if r.ARIMAEvaluation != nil {
		e := *r.ARIMAEvaluation
		c.ARIMAEvaluation = &e
	}
	if r.FeatureImportance != nil {
		c.FeatureImportance = make(map[string][]models.FeatureImportance, len(r.FeatureImportance))
		for k, v := range r.FeatureImportance {
			c.FeatureImportance[k] = append([]models.FeatureImportance(nil), v...)
		}
	}
	return &c
}
