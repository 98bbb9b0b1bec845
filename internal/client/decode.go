package client

import (
	"encoding/json"
	"fmt"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

// dailyResponse is the subset of an Open-Meteo daily response we read. Both endpoints
// return parallel arrays; null entries decode as nil pointers.
type dailyResponse struct {
	Daily *struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		TempMin       []*float64 `json:"temperature_2m_min"`
		Precipitation []*float64 `json:"precipitation_sum"`
		WindSpeed     []*float64 `json:"windspeed_10m_max"`
	} `json:"daily"`
}

func decodeObservation(source models.Source, date models.Date, body []byte) (models.Observation, error) {
	if source == models.SourceForecast {
		return decodeForecast(date, body)
	}
	return decodeArchive(date, body)
}

// decodeArchive reads the single day at index 0 of a start_date=end_date archive query.
func decodeArchive(date models.Date, body []byte) (models.Observation, error) {
	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Observation{}, &DataFormatError{Date: date, Reason: "invalid JSON", Err: err}
	}
	if resp.Daily == nil {
		return models.Observation{}, &DataFormatError{Date: date, Reason: `missing "daily" object`}
	}
	d := resp.Daily
	obs, missing := pick(0, d.TempMin, d.TempMax, d.Precipitation, d.WindSpeed)
	if missing != "" {
		return models.Observation{}, &DataFormatError{Date: date, Reason: "missing " + missing}
	}
	obs.Date = date
	obs.Source = models.SourceArchive
	return obs, nil
}

// decodeForecast locates date in daily.time by exact ISO string match and reads every field at that index.
func decodeForecast(date models.Date, body []byte) (models.Observation, error) {
	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Observation{}, &DataUnavailableError{Date: date, Reason: "invalid JSON", Err: err}
	}
	if resp.Daily == nil {
		return models.Observation{}, &DataUnavailableError{Date: date, Reason: `missing "daily" object`}
	}
	d := resp.Daily
	want := date.String()
	idx := -1
	for i, ts := range d.Time {
		if ts == want {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Observation{}, &DataUnavailableError{Date: date, Reason: "date not in forecast"}
	}
	obs, missing := pick(idx, d.TempMin, d.TempMax, d.Precipitation, d.WindSpeed)
	if missing != "" {
		return models.Observation{}, &DataUnavailableError{Date: date, Reason: "missing " + missing}
	}
	obs.Date = date
	obs.Source = models.SourceForecast
	return obs, nil
}

// pick reads index i of each field array. It returns the name of the first field that is
// absent, too short, or null at i.
func pick(i int, tmin, tmax, precip, wind []*float64) (models.Observation, string) {
	fields := []struct {
		name   string
		values []*float64
	}{
		{"temperature_2m_min", tmin},
		{"temperature_2m_max", tmax},
		{"precipitation_sum", precip},
		{"windspeed_10m_max", wind},
	}
	out := make([]float64, len(fields))
	for n, f := range fields {
		if i >= len(f.values) || f.values[i] == nil {
			return models.Observation{}, fmt.Sprintf("%s[%d]", f.name, i)
		}
		out[n] = *f.values[i]
	}
	return models.Observation{
		TMin:          out[0],
		TMax:          out[1],
		Precipitation: out[2],
		WindSpeed:     out[3],
	}, ""
}
