package predict

import (
	"errors"
	"fmt"
	"math"
)

// Activation names the non-linearity applied after a dense layer.
type Activation string

const (
	ActivationLinear  Activation = "linear"
	ActivationReLU    Activation = "relu"
	ActivationSigmoid Activation = "sigmoid"
	ActivationTanh    Activation = "tanh"
)

func (a Activation) apply(x float64) (float64, error) {
	switch a {
	case ActivationLinear, "":
		return x, nil
	case ActivationReLU:
		return math.Max(0, x), nil
	case ActivationSigmoid:
		return 1 / (1 + math.Exp(-x)), nil
	case ActivationTanh:
		return math.Tanh(x), nil
	default:
		return 0, fmt.Errorf("unknown activation %q", string(a))
	}
}

// Model maps a scaled feature vector to a temperature in °C.
type Model interface {
	Predict(features []float64) (float64, error)
}

// DenseLayer is one fully connected layer. Weights is indexed [input][output], matching
// the kernel layout exported by common training frameworks.
type DenseLayer struct {
	Weights    [][]float64 `yaml:"weights" json:"weights"`
	Biases     []float64   `yaml:"biases" json:"biases"`
	Activation Activation  `yaml:"activation" json:"activation"`
}

func (l DenseLayer) inputs() int { return len(l.Weights) }

func (l DenseLayer) outputs() int { return len(l.Biases) }

// DenseNetwork is a feed-forward stack of dense layers with a single output.
type DenseNetwork struct {
	Layers []DenseLayer `yaml:"layers" json:"layers"`
}

// Validate checks layer shapes chain together and the network ends in one output.
func (n *DenseNetwork) Validate() error {
	if len(n.Layers) == 0 {
		return errors.New("model has no layers")
	}
	for i, l := range n.Layers {
		if l.inputs() == 0 || l.outputs() == 0 {
			return fmt.Errorf("layer %d is empty", i)
		}
		for r, row := range l.Weights {
			if len(row) != l.outputs() {
				return fmt.Errorf("layer %d weights row %d has %d columns, want %d", i, r, len(row), l.outputs())
			}
		}
		if _, err := l.Activation.apply(0); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if i > 0 && l.inputs() != n.Layers[i-1].outputs() {
			return fmt.Errorf("layer %d expects %d inputs, previous layer has %d outputs", i, l.inputs(), n.Layers[i-1].outputs())
		}
	}
	if out := n.Layers[len(n.Layers)-1].outputs(); out != 1 {
		return fmt.Errorf("model must have exactly one output, has %d", out)
	}
	return nil
}

// Inputs returns the width of the input layer.
func (n *DenseNetwork) Inputs() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[0].inputs()
}

// Predict runs a forward pass.
func (n *DenseNetwork) Predict(features []float64) (float64, error) {
	if len(n.Layers) == 0 {
		return 0, errors.New("model has no layers")
	}
	if len(features) != n.Inputs() {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), n.Inputs())
	}
	x := features
	for i, l := range n.Layers {
		y := make([]float64, l.outputs())
		copy(y, l.Biases)
		for in, v := range x {
			for out, w := range l.Weights[in] {
				y[out] += v * w
			}
		}
		for j := range y {
			a, err := l.Activation.apply(y[j])
			if err != nil {
				return 0, fmt.Errorf("layer %d: %w", i, err)
			}
			y[j] = a
		}
		x = y
	}
	if math.IsNaN(x[0]) || math.IsInf(x[0], 0) {
		return 0, errors.New("model produced a non-finite output")
	}
	return x[0], nil
}
