package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/daily-digest/internal/background"
	"github.com/kjstillabower/daily-digest/internal/dashboard"
	"github.com/kjstillabower/daily-digest/internal/lifecycle"
	"github.com/kjstillabower/daily-digest/internal/render"
	"github.com/kjstillabower/daily-digest/internal/traffic"
	"github.com/kjstillabower/daily-digest/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// HandlerConfig collects the handler's dependencies.
type HandlerConfig struct {
	Pages          *dashboard.Registry
	Rotator        *background.Rotator
	Renderer       *render.Renderer
	Fetcher        dashboard.Fetcher
	Defaults       dashboard.Defaults
	MaxQueryLength int
	Health         *HealthConfig
	Logger         *zap.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pages          *dashboard.Registry
	rotator        *background.Rotator
	renderer       *render.Renderer
	fetcher        dashboard.Fetcher
	defaults       dashboard.Defaults
	maxQueryLength int
	healthConfig   *HealthConfig
	logger         *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pages:          cfg.Pages,
		rotator:        cfg.Rotator,
		renderer:       cfg.Renderer,
		fetcher:        cfg.Fetcher,
		defaults:       cfg.Defaults,
		maxQueryLength: cfg.MaxQueryLength,
		healthConfig:   cfg.Health,
		logger:         logger,
	}
}

// requestLogger returns the logger CorrelationIDMiddleware stored, or the handler's own.
func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return h.logger
}

// GetIndex handles GET /. Each load opens a fresh page and bootstraps all regions.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Create()
	if err != nil {
		h.requestLogger(r).Warn("page create failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "TOO_MANY_PAGES", "Too many open dashboards, try again later")
		return
	}
	page.Bootstrap()

	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, page.View(h.rotator.Current(), h.maxQueryLength)); err != nil {
		h.requestLogger(r).Error("page render failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// PostRegion handles POST /pages/{page}/regions/{region}. Form value q is the
// region's input; the response is the region's fragment right after the trigger.
func (h *Handler) PostRegion(w http.ResponseWriter, r *http.Request) {
	page, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "Unable to parse form")
		return
	}
	snap, err := page.Trigger(mux.Vars(r)["region"], r.FormValue("q"))
	if err != nil {
		h.writeRegionError(w, r, err)
		return
	}
	writeFragment(w, snap)
}

// GetRegion handles GET /pages/{page}/regions/{region}.
func (h *Handler) GetRegion(w http.ResponseWriter, r *http.Request) {
	page, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	snap, err := page.Snapshot(mux.Vars(r)["region"])
	if err != nil {
		h.writeRegionError(w, r, err)
		return
	}
	writeFragment(w, snap)
}

func (h *Handler) lookupPage(w http.ResponseWriter, r *http.Request) (*dashboard.Page, bool) {
	page, err := h.pages.Get(mux.Vars(r)["page"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "PAGE_NOT_FOUND", "Dashboard page expired, reload to continue")
		return nil, false
	}
	return page, true
}

func (h *Handler) writeRegionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dashboard.ErrUnknownRegion) {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_REGION", err.Error())
		return
	}
	h.requestLogger(r).Error("region render failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render region")
}

// writeFragment sends a region's HTML with its state in headers for the script.
func writeFragment(w http.ResponseWriter, snap dashboard.Snapshot) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Region-State", string(snap.State))
	w.Header().Set("X-Region-Generation", strconv.FormatUint(snap.Generation, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snap.HTML))
}

// GetBackground handles GET /background.
func (h *Handler) GetBackground(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":   h.rotator.Current(),
		"index": h.rotator.Index(),
	})
}

// GetAPIWeather handles GET /api/weather/{city}.
func (h *Handler) GetAPIWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateLocation(mux.Vars(r)["city"], h.maxQueryLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	reading := h.fetcher.Weather(r.Context(), city)
	if reading == nil {
		traffic.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, reading)
}

// GetAPINews handles GET /api/news?q=. A blank q uses the default category.
func (h *Handler) GetAPINews(w http.ResponseWriter, r *http.Request) {
	category, err := validation.ValidateSearchTerm(r.URL.Query().Get("q"), h.maxQueryLength)
	if errors.Is(err, validation.ErrQueryEmpty) {
		category, err = h.defaults.NewsCategory, nil
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	items := h.fetcher.News(r.Context(), category)
	if len(items) == 0 {
		traffic.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch news")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"items":    items,
	})
}

// GetAPIPhotos handles GET /api/photos?q=.
func (h *Handler) GetAPIPhotos(w http.ResponseWriter, r *http.Request) {
	term, err := validation.ValidateSearchTerm(r.URL.Query().Get("q"), h.maxQueryLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	photos := h.fetcher.Photos(r.Context(), term)
	if len(photos) == 0 {
		traffic.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch photos")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"term":   term,
		"photos": photos,
	})
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
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

	checks := map[string]string{"upstreams": "healthy"}
	if result.status == "degraded" {
		checks["upstreams"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "daily-digest",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.pages != nil {
		resp["activePages"] = h.pages.Len()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 &&
		traffic.Degraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}; requestId is the correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
