package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/daily-digest/internal/models"
)

type PhotoClient interface {
	RandomPhotos(ctx context.Context, term string) ([]models.PhotoURL, error)
}

// UnsplashClient fetches random photos matching a search term.
type UnsplashClient struct {
	baseClient
	count int
}

func NewUnsplashClient(apiKey, apiURL string, timeout time.Duration, count int) (*UnsplashClient, error) {
	base, err := newBaseClient(APIPhotos, apiKey, apiURL, timeout)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 6
	}
	return &UnsplashClient{baseClient: base, count: count}, nil
}

type unsplashPhoto struct {
	URLs struct {
		Regular string `json:"regular"`
	} `json:"urls"`
}

func (c *UnsplashClient) RandomPhotos(ctx context.Context, term string) ([]models.PhotoURL, error) {
	params := url.Values{}
	params.Set("query", term)
	params.Set("count", strconv.Itoa(c.count))
	params.Set("client_id", c.apiKey)

	var apiResp []unsplashPhoto
	if err := c.getJSON(ctx, params, &apiResp); err != nil {
		return nil, err
	}

	photos := make([]models.PhotoURL, 0, len(apiResp))
	for _, p := range apiResp {
		if p.URLs.Regular == "" {
			continue
		}
		photos = append(photos, models.PhotoURL(p.URLs.Regular))
		if len(photos) == c.count {
			break
		}
	}
	return photos, nil
}
