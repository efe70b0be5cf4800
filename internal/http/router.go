package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-analytics-service/internal/observability"
)

// RouterOptions configures the /api subrouter.
type RouterOptions struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // 0 disables the per-request deadline
}

// NewRouter builds the route table. Health and metrics bypass the rate
// limiter and the request deadline.
func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(RecoverMiddleware(logger))

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(opts.Limiter))
	if opts.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	api.HandleFunc("/collect-data", h.PostCollectData).Methods(http.MethodPost)
	api.HandleFunc("/reverse-geocoding", h.PostReverseGeocoding).Methods(http.MethodPost)
	api.HandleFunc("/region/provinces", h.GetProvinces).Methods(http.MethodGet)
	api.HandleFunc("/region/cities", h.GetCities).Methods(http.MethodGet)
	api.HandleFunc("/region/districts", h.GetDistricts).Methods(http.MethodGet)
	api.HandleFunc("/train-model", h.PostTrainModel).Methods(http.MethodPost)
	api.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/advice", h.GetAdvice).Methods(http.MethodGet)
	api.HandleFunc("/results", h.GetResults).Methods(http.MethodGet)
	api.HandleFunc("/clear", h.PostClear).Methods(http.MethodPost)
	return router
}
