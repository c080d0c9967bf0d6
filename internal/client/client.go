package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/daily-digest/internal/observability"
)

var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrNotFound           = errors.New("not found")
	ErrUpstreamFailure    = errors.New("upstream failure")
	ErrRateLimited        = errors.New("rate limited")
	ErrIncompleteResponse = errors.New("incomplete response")
)

// Upstream API labels used for metrics and logs.
const (
	APIWeather = "weather"
	APINews    = "news"
	APIPhotos  = "photos"
)

// baseClient carries what the three upstream clients share: endpoint, key and
// the HTTP client. A zero timeout leaves requests unbounded (platform default).
type baseClient struct {
	api     string
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

func newBaseClient(api, apiKey, apiURL string, timeout time.Duration) (baseClient, error) {
	if apiKey == "" {
		return baseClient{}, fmt.Errorf("%w: %s API key is required", ErrInvalidAPIKey, api)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return baseClient{}, fmt.Errorf("invalid %s API URL: %w", api, err)
	}
	return baseClient{
		api:     api,
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// getJSON issues one GET with params and decodes a 2xx body into out.
// Exactly one attempt is made.
func (c *baseClient) getJSON(ctx context.Context, params url.Values, out interface{}) error {
	start := time.Now()

	req, err := c.buildRequest(ctx, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(c.api, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(c.api, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(c.api, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(c.api, status).Inc()
	observability.UpstreamDuration.WithLabelValues(c.api, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *baseClient) buildRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
