package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/daily-digest/internal/observability"
	"github.com/kjstillabower/daily-digest/internal/render"
)

// RouterConfig controls the middleware stack.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // JSON API only; 0 disables
}

// NewRouter mounts every route on h.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/background", h.GetBackground).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.FS(render.Static()))),
	).Methods(http.MethodGet)

	pages := router.PathPrefix("/pages/{page}").Subrouter()
	pages.Use(RateLimitMiddleware(cfg.Limiter))
	pages.HandleFunc("/regions/{region}", h.PostRegion).Methods(http.MethodPost)
	pages.HandleFunc("/regions/{region}", h.GetRegion).Methods(http.MethodGet)
	pages.HandleFunc("/ws", h.GetEvents).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/weather/{city}", h.GetAPIWeather).Methods(http.MethodGet)
	api.HandleFunc("/news", h.GetAPINews).Methods(http.MethodGet)
	api.HandleFunc("/photos", h.GetAPIPhotos).Methods(http.MethodGet)

	return router
}
