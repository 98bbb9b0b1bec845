package models

// Source identifies which upstream endpoint produced an observation.
type Source string

const (
	SourceArchive  Source = "archive"
	SourceForecast Source = "forecast"
)

// Observation holds the four daily weather features used by the model.
// TMin/TMax in °C, Precipitation in mm, WindSpeed in m/s. Values are not range-checked.
type Observation struct {
	Date          Date    `json:"date"`
	TMin          float64 `json:"tmin"`
	TMax          float64 `json:"tmax"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"windSpeed"`
	Source        Source  `json:"source"`
}

// Prediction is the model output for a date together with the inputs that produced it.
type Prediction struct {
	Date         Date        `json:"date"`
	Observation  Observation `json:"observation"`
	DayOfYear    int         `json:"dayOfYear"`
	TemperatureC float64     `json:"temperatureC"`
	TemperatureF float64     `json:"temperatureF"`
	Cached       bool        `json:"cached"`
}

// CelsiusToFahrenheit converts a temperature in °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
