package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/lifecycle"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/observability"
	"github.com/kjstillabower/weather-analytics-service/internal/service"
	"github.com/kjstillabower/weather-analytics-service/internal/traffic"
	"github.com/kjstillabower/weather-analytics-service/internal/validation"
)

const (
	msgNoHistory     = "No historical data. Please collect data first."
	msgNoForecast    = "No forecast data. Please request a forecast first."
	msgCollectFailed = "Failed to collect data"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Defaults are the request defaults and limits for data collection.
type Defaults struct {
	City    string
	Days    int
	MaxDays int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	analytics        *service.AnalyticsService
	healthConfig     *HealthConfig
	defaults         Defaults
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(analytics *service.AnalyticsService, healthConfig *HealthConfig, defaults Defaults, logger *zap.Logger) *Handler {
	if defaults.City == "" {
		defaults.City = "beijing"
	}
	if defaults.Days <= 0 {
		defaults.Days = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		analytics:    analytics,
		healthConfig: healthConfig,
		defaults:     defaults,
		logger:       logger,
	}
}

// GetIndex handles GET /.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "Weather Analytics API Server",
		"endpoints": map[string]string{
			"POST /api/collect-data":      "Collect historical weather data",
			"POST /api/reverse-geocoding": "Resolve coordinates to an address",
			"GET /api/region/provinces":   "List provinces",
			"GET /api/region/cities":      "List cities of a province",
			"GET /api/region/districts":   "List districts of a city",
			"POST /api/train-model":       "Train weather prediction models",
			"GET /api/forecast":           "Get weather forecast data",
			"GET /api/advice":             "Get lifestyle advice for the forecast",
			"GET /api/results":            "Get all processed results",
			"POST /api/clear":             "Clear all stored data",
		},
	})
}

type collectRequest struct {
	City *string `json:"city"`
	Days *int    `json:"days"`
}

// PostCollectData handles POST /api/collect-data.
func (h *Handler) PostCollectData(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	city := h.defaults.City
	if req.City != nil {
		c, err := validation.ValidateCity(*req.City)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		city = c
	}
	days := h.defaults.Days
	if req.Days != nil {
		days = *req.Days
	}
	if err := validation.ValidateDays(days, h.defaults.MaxDays); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.analytics.Collect(r.Context(), city, days)
	if err != nil {
		if errors.Is(err, service.ErrCollectFailed) {
			writeInternalError(w, r, msgCollectFailed, err)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	history := make([]map[string]interface{}, len(result.Records))
	for i, rec := range result.Records {
		history[i] = service.Fields(rec, models.RecordColumns)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "success",
		"city":                 result.City,
		"days_collected":       len(result.Records),
		"historical_data":      history,
		"weather_distribution": result.Distribution,
		"columns":              models.RecordColumns,
	})
}

type reverseRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// PostReverseGeocoding handles POST /api/reverse-geocoding.
func (h *Handler) PostReverseGeocoding(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lat, lon, err := validation.ValidateCoordinates(req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"location_info": h.analytics.ReverseGeocode(r.Context(), lat, lon),
	})
}

// GetProvinces handles GET /api/region/provinces.
func (h *Handler) GetProvinces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analytics.Provinces(r.Context()))
}

// GetCities handles GET /api/region/cities?adcode=.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	adcode, err := validation.ValidateAdcode(r.URL.Query().Get("adcode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.analytics.Cities(r.Context(), adcode))
}

// GetDistricts handles GET /api/region/districts?adcode=.
func (h *Handler) GetDistricts(w http.ResponseWriter, r *http.Request) {
	adcode, err := validation.ValidateAdcode(r.URL.Query().Get("adcode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.analytics.Districts(r.Context(), adcode))
}

// PostTrainModel handles POST /api/train-model.
func (h *Handler) PostTrainModel(w http.ResponseWriter, r *http.Request) {
	result, err := h.analytics.Train(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	resp := map[string]interface{}{
		"status":               "success",
		"arima_order":          result.ARIMAOrder,
		"temperature_forecast": result.TemperatureForecast,
		"model_evaluation": map[string]models.ClassifierMetrics{
			"logistic_regression": result.LogisticRegression,
			"decision_tree":       result.DecisionTree,
		},
		"warnings": warnings,
	}
	if result.ARIMAEvaluation != nil {
		resp["arima_evaluation"] = result.ARIMAEvaluation
	}
	if len(result.FeatureImportance) > 0 {
		resp["feature_importance"] = result.FeatureImportance
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetForecast handles GET /api/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.analytics.Forecast(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                  "success",
		"official_forecast":       bundle.Official,
		"ai_temperature_forecast": bundle.AITemperature,
		"ai_weather_forecast":     bundle.AIWeather,
	})
}

// GetAdvice handles GET /api/advice.
func (h *Handler) GetAdvice(w http.ResponseWriter, r *http.Request) {
	city, days, err := h.analytics.Advice(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"city":   city,
		"advice": days,
	})
}

type resultsResponse struct {
	Status string `json:"status"`
	service.Results
}

// GetResults handles GET /api/results.
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, resultsResponse{Status: "success", Results: h.analytics.Results(r.Context())})
}

// PostClear handles POST /api/clear.
func (h *Handler) PostClear(w http.ResponseWriter, r *http.Request) {
	h.analytics.Clear()
	observability.LoggerFromContext(r.Context(), h.logger).Info("state cleared")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "All data cleared",
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	unhealthy  map[string]bool
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	for _, name := range traffic.Upstreams() {
		if result.unhealthy[name] {
			checks[name] = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-analytics-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, then degraded when
// any upstream's error rate in the window reaches the threshold. Upstream
// failures are served from fallbacks, so degraded answers 200.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{status: "shutting-down", statusCode: http.StatusServiceUnavailable, reason: "signal"}
	}
	if h.healthConfig == nil || h.healthConfig.DegradedWindow <= 0 || h.healthConfig.DegradedErrorPct <= 0 {
		return healthResult{status: "healthy", statusCode: http.StatusOK}
	}
	unhealthy := map[string]bool{}
	for _, name := range traffic.Upstreams() {
		errCount, total := traffic.ErrorRate(name, h.healthConfig.DegradedWindow)
		if total == 0 {
			continue
		}
		if float64(errCount)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			unhealthy[name] = true
		}
	}
	if len(unhealthy) > 0 {
		return healthResult{status: "degraded", statusCode: http.StatusOK, reason: "error_rate_breach", unhealthy: unhealthy}
	}
	return healthResult{status: "healthy", statusCode: http.StatusOK}
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched. Returns false after writing a 400 for malformed JSON.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, r, http.StatusBadRequest, "invalid JSON body")
	return false
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}. The correlation ID travels in the
// X-Correlation-ID response header.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeInternalError logs err and writes a 500 with message.
func writeInternalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	observability.LoggerFromContext(r.Context(), nil).Error("request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, message)
}

// writeServiceError maps analytics errors to status codes: missing
// preconditions are 400, an expired request deadline 504, anything else 500
// with the error text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNoHistory):
		writeError(w, r, http.StatusBadRequest, msgNoHistory)
	case errors.Is(err, service.ErrNoForecast):
		writeError(w, r, http.StatusBadRequest, msgNoForecast)
	case errors.Is(err, context.DeadlineExceeded):
		observability.LoggerFromContext(r.Context(), nil).Warn("request deadline exceeded", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "request timed out")
	default:
		writeInternalError(w, r, err.Error(), err)
	}
}
