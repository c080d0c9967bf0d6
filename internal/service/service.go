package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-digest/internal/cache"
	"github.com/kjstillabower/daily-digest/internal/client"
	"github.com/kjstillabower/daily-digest/internal/models"
	"github.com/kjstillabower/daily-digest/internal/observability"
)

// DigestService is the boundary between the dashboard and the upstream APIs.
// Its methods never return errors: a failed call is logged and reported as a
// nil reading or an empty list, which renderers treat as "request failed".
type DigestService struct {
	weather client.WeatherClient
	news    client.NewsClient
	photos  client.PhotoClient
	cache   cache.Cache // nil disables caching
	ttl     time.Duration
	logger  *zap.Logger
}

// NewDigestService wires the three upstream clients. cache may be nil; results
// are then fetched on every call. logger may be nil.
func NewDigestService(weather client.WeatherClient, news client.NewsClient, photos client.PhotoClient, c cache.Cache, ttl time.Duration, logger *zap.Logger) *DigestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DigestService{
		weather: weather,
		news:    news,
		photos:  photos,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

// loggerFromContext returns the request-scoped logger if middleware stored one.
func (s *DigestService) loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return s.logger
}

// Weather returns the current reading for city, or nil if it could not be fetched.
func (s *DigestService) Weather(ctx context.Context, city string) *models.WeatherReading {
	observability.RecordWeatherQuery(city)
	key := cacheKey(client.APIWeather, city)

	var reading models.WeatherReading
	if s.cachedInto(ctx, client.APIWeather, key, &reading) {
		return &reading
	}

	reading, err := s.weather.GetCurrentWeather(ctx, city)
	if err != nil {
		s.fetchFailed(ctx, client.APIWeather, city, err)
		return nil
	}
	s.store(ctx, key, reading)
	return &reading
}

// News returns at most the configured number of headlines for term; empty on failure.
func (s *DigestService) News(ctx context.Context, term string) []models.NewsItem {
	key := cacheKey(client.APINews, term)

	var items []models.NewsItem
	if s.cachedInto(ctx, client.APINews, key, &items) && len(items) > 0 {
		return items
	}

	items, err := s.news.SearchNews(ctx, term)
	if err != nil {
		s.fetchFailed(ctx, client.APINews, term, err)
		return []models.NewsItem{}
	}
	if len(items) > 0 {
		s.store(ctx, key, items)
	}
	return items
}

// Photos returns photo URLs for term; empty on failure.
func (s *DigestService) Photos(ctx context.Context, term string) []models.PhotoURL {
	key := cacheKey(client.APIPhotos, term)

	var photos []models.PhotoURL
	if s.cachedInto(ctx, client.APIPhotos, key, &photos) && len(photos) > 0 {
		return photos
	}

	photos, err := s.photos.RandomPhotos(ctx, term)
	if err != nil {
		s.fetchFailed(ctx, client.APIPhotos, term, err)
		return []models.PhotoURL{}
	}
	if len(photos) > 0 {
		s.store(ctx, key, photos)
	}
	return photos
}

func (s *DigestService) fetchFailed(ctx context.Context, api, query string, err error) {
	s.loggerFromContext(ctx).Error("fetch failed",
		zap.String("api", api),
		zap.String("query", query),
		zap.Error(err))
}

// cachedInto decodes a cached entry into out. Cache errors count as misses.
func (s *DigestService) cachedInto(ctx context.Context, api, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		s.loggerFromContext(ctx).Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return false
	}
	observability.CacheHitsTotal.WithLabelValues(api).Inc()
	s.loggerFromContext(ctx).Debug("cache hit", zap.String("key", key))
	return true
}

func (s *DigestService) store(ctx context.Context, key string, v interface{}) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		s.loggerFromContext(ctx).Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(api, query string) string {
	return api + ":" + normalizeQuery(query)
}

// normalizeQuery trims whitespace and lowercases so equivalent queries share a cache key.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
