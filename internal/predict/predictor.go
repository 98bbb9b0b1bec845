package predict

import (
	"fmt"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

// FeatureCount is the width of the model input: tmin, tmax, precipitation, wind speed, day of year.
const FeatureCount = 5

// Predictor turns an observation into a predicted mean daily temperature.
type Predictor struct {
	scaler Scaler
	model  Model
}

func NewPredictor(scaler Scaler, model Model) *Predictor {
	return &Predictor{scaler: scaler, model: model}
}

// Load builds a Predictor from artifact files and checks both accept FeatureCount inputs.
func Load(modelPath, scalerPath string) (*Predictor, error) {
	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	if scaler.Features() != FeatureCount {
		return nil, fmt.Errorf("scaler %s: %w: has %d features, want %d", scalerPath, ErrFeatureCount, scaler.Features(), FeatureCount)
	}
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	if model.Inputs() != FeatureCount {
		return nil, fmt.Errorf("model %s: %w: has %d inputs, want %d", modelPath, ErrFeatureCount, model.Inputs(), FeatureCount)
	}
	return NewPredictor(scaler, model), nil
}

// Features builds the raw model input for obs on date, in training column order.
func Features(obs models.Observation, date models.Date) []float64 {
	return []float64{obs.TMin, obs.TMax, obs.Precipitation, obs.WindSpeed, float64(date.DayOfYear())}
}

// Predict scales the features, runs the model and returns the prediction in °C and °F.
func (p *Predictor) Predict(obs models.Observation, date models.Date) (models.Prediction, error) {
	scaled, err := p.scaler.Transform(Features(obs, date))
	if err != nil {
		return models.Prediction{}, fmt.Errorf("scale features: %w", err)
	}
	c, err := p.model.Predict(scaled)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("run model: %w", err)
	}
	return models.Prediction{
		Date:         date,
		Observation:  obs,
		DayOfYear:    date.DayOfYear(),
		TemperatureC: c,
		TemperatureF: models.CelsiusToFahrenheit(c),
	}, nil
}
