package predict

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadScaler reads a MinMaxScaler artifact (YAML or JSON) from path.
func LoadScaler(path string) (*MinMaxScaler, error) {
	var s MinMaxScaler
	if err := decodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("load scaler %s: %w", path, err)
	}
	return &s, nil
}

// LoadModel reads a DenseNetwork artifact (YAML or JSON) from path.
func LoadModel(path string) (*DenseNetwork, error) {
	var n DenseNetwork
	if err := decodeFile(path, &n); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return &n, nil
}

func decodeFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decode(f, out)
}

// decode parses YAML (and therefore JSON) rejecting unknown fields.
func decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("artifact is empty")
		}
		return err
	}
	return nil
}
