package client

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/kjstillabower/daily-digest/internal/models"
)

type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (models.WeatherReading, error)
}

// OpenWeatherClient queries the OpenWeatherMap current-weather endpoint.
type OpenWeatherClient struct {
	baseClient
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	base, err := newBaseClient(APIWeather, apiKey, apiURL, timeout)
	if err != nil {
		return nil, err
	}
	return &OpenWeatherClient{baseClient: base}, nil
}

// Pointer fields distinguish an absent value from a zero one; every consumed
// field must be present for the reading to be kept.
type openWeatherResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description *string `json:"description"`
		Icon        *string `json:"icon"`
	} `json:"weather"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Sys *struct {
		Country *string `json:"country"`
	} `json:"sys"`
	Dt   *int64  `json:"dt"`
	Name *string `json:"name"`
}

func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherReading, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	var apiResp openWeatherResponse
	if err := c.getJSON(ctx, params, &apiResp); err != nil {
		return models.WeatherReading{}, err
	}
	return mapWeather(apiResp)
}

func mapWeather(r openWeatherResponse) (models.WeatherReading, error) {
	if r.Main == nil || r.Main.Temp == nil || r.Main.Humidity == nil ||
		len(r.Weather) == 0 || r.Weather[0].Description == nil || r.Weather[0].Icon == nil ||
		r.Wind == nil || r.Wind.Speed == nil ||
		r.Sys == nil || r.Sys.Country == nil ||
		r.Dt == nil || r.Name == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: weather record missing fields", ErrIncompleteResponse)
	}

	return models.WeatherReading{
		Temperature: roundHalfUp(*r.Main.Temp),
		Condition:   *r.Weather[0].Description,
		Humidity:    *r.Main.Humidity,
		WindSpeed:   *r.Wind.Speed,
		Icon:        *r.Weather[0].Icon,
		Country:     *r.Sys.Country,
		Timestamp:   *r.Dt,
		City:        *r.Name,
	}, nil
}

// roundHalfUp rounds .5 toward positive infinity, so -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
