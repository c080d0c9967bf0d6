package models

// WeatherReading is the current conditions for one city as shown in the weather region.
type WeatherReading struct {
	Temperature int     `json:"temperature"` // degrees Celsius, rounded
	Condition   string  `json:"condition"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"` // m/s
	Icon        string  `json:"icon"`
	Country     string  `json:"country"`
	Timestamp   int64   `json:"timestamp"` // epoch seconds of the observation
	City        string  `json:"city"`
}
