package config

import (
	"fmt"
	"io"
	"os"

	"github.com/LucaChot/ghmm/src/hmm"
	"gopkg.in/yaml.v3"
)

// DefaultParameters is the three state, two dimensional example model.
func DefaultParameters() hmm.ParameterSet {
	return hmm.ParameterSet{
		Pi: []float64{0.15, 0.2, 0.65},
		A: [][]float64{
			{0.55, 0.15, 0.3},
			{0.45, 0.45, 0.1},
			{0.15, 0.2, 0.65},
		},
		Mu: [][]float64{
			{-7.0, -8.0},
			{-1.5, 3.7},
			{-1.7, 1.2},
		},
		Sigma: [][][]float64{
			{{0.12, -0.01}, {-0.01, 0.5}},
			{{0.21, 0.05}, {0.05, 0.03}},
			{{0.37, 0.35}, {0.35, 0.44}},
		},
	}
}

// LoadParameters reads a YAML parameter set from path, or returns
// DefaultParameters when path is empty. Shapes and values are checked by
// hmm.NewParams, not here.
func LoadParameters(path string) (hmm.ParameterSet, error) {
	if path == "" {
		return DefaultParameters(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return hmm.ParameterSet{}, fmt.Errorf("failed to open parameters: %w", err)
	}
	defer f.Close()
	return DecodeParameters(f)
}

// DecodeParameters parses a single YAML parameter set. Unknown keys are
// rejected.
func DecodeParameters(r io.Reader) (hmm.ParameterSet, error) {
	var ps hmm.ParameterSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ps); err != nil {
		return hmm.ParameterSet{}, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return ps, nil
}

// WriteParameters encodes ps as YAML.
func WriteParameters(w io.Writer, ps hmm.ParameterSet) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ps); err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	return enc.Close()
}

// SaveParameters writes ps to path, replacing any existing file.
func SaveParameters(path string, ps hmm.ParameterSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteParameters(f, ps); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
