package predict

import (
	"errors"
	"fmt"
	"math"
)

// ErrFeatureCount is returned when an input vector does not match the artifact's width.
var ErrFeatureCount = errors.New("feature count mismatch")

// Scaler normalizes a raw feature vector into the range the model was trained on.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
}

// MinMaxScaler applies x*Scale[i] + Min[i] per feature, the fitted form of a min-max scaler
// (Scale = (hi-lo)/(dataMax-dataMin), Min = lo - dataMin*Scale).
type MinMaxScaler struct {
	Min   []float64 `yaml:"min" json:"min"`
	Scale []float64 `yaml:"scale" json:"scale"`
}

// NewMinMaxScaler fits a scaler to the [0,1] range from per-feature data minima and maxima.
// Constant features (max == min) get a scale of 1.
func NewMinMaxScaler(dataMin, dataMax []float64) (*MinMaxScaler, error) {
	if len(dataMin) != len(dataMax) {
		return nil, fmt.Errorf("%w: %d minima, %d maxima", ErrFeatureCount, len(dataMin), len(dataMax))
	}
	s := &MinMaxScaler{Min: make([]float64, len(dataMin)), Scale: make([]float64, len(dataMin))}
	for i := range dataMin {
		span := dataMax[i] - dataMin[i]
		if span == 0 {
			span = 1
		}
		s.Scale[i] = 1 / span
		s.Min[i] = -dataMin[i] * s.Scale[i]
	}
	return s, nil
}

// Validate checks the artifact is internally consistent.
func (s *MinMaxScaler) Validate() error {
	if len(s.Scale) == 0 {
		return errors.New("scaler has no features")
	}
	if len(s.Min) != len(s.Scale) {
		return fmt.Errorf("%w: %d min values, %d scale values", ErrFeatureCount, len(s.Min), len(s.Scale))
	}
	for i := range s.Scale {
		if math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) || math.IsNaN(s.Min[i]) || math.IsInf(s.Min[i], 0) {
			return fmt.Errorf("scaler feature %d is not finite", i)
		}
	}
	return nil
}

// Features returns the number of features the scaler accepts.
func (s *MinMaxScaler) Features() int {
	return len(s.Scale)
}

func (s *MinMaxScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Scale) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), len(s.Scale))
	}
	out := make([]float64, len(features))
	for i, x := range features {
		out[i] = x*s.Scale[i] + s.Min[i]
	}
	return out, nil
}
