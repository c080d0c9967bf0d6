package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/daily-digest/internal/models"
)

type NewsClient interface {
	SearchNews(ctx context.Context, term string) ([]models.NewsItem, error)
}

// GuardianClient searches the Guardian content API.
type GuardianClient struct {
	baseClient
	pageSize int
	maxItems int
}

// NewGuardianClient requests pageSize results per search and keeps at most maxItems of them.
func NewGuardianClient(apiKey, apiURL string, timeout time.Duration, pageSize, maxItems int) (*GuardianClient, error) {
	base, err := newBaseClient(APINews, apiKey, apiURL, timeout)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if maxItems <= 0 {
		maxItems = 6
	}
	return &GuardianClient{baseClient: base, pageSize: pageSize, maxItems: maxItems}, nil
}

type guardianResponse struct {
	Response struct {
		Status  string `json:"status"`
		Results []struct {
			WebTitle    string `json:"webTitle"`
			WebURL      string `json:"webUrl"`
			SectionName string `json:"sectionName"`
		} `json:"results"`
	} `json:"response"`
}

func (c *GuardianClient) SearchNews(ctx context.Context, term string) ([]models.NewsItem, error) {
	params := url.Values{}
	params.Set("q", term)
	params.Set("api-key", c.apiKey)
	params.Set("page-size", strconv.Itoa(c.pageSize))

	var apiResp guardianResponse
	if err := c.getJSON(ctx, params, &apiResp); err != nil {
		return nil, err
	}

	items := make([]models.NewsItem, 0, c.maxItems)
	for _, r := range apiResp.Response.Results {
		if len(items) == c.maxItems {
			break
		}
		if r.WebTitle == "" || r.WebURL == "" || r.SectionName == "" {
			continue
		}
		items = append(items, models.NewsItem{
			Title:   r.WebTitle,
			Link:    r.WebURL,
			Section: r.SectionName,
		})
	}
	return items, nil
}
