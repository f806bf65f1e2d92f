package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/deedchain/pkg/scoring"
)

// LoadWeights overlays the YAML file at path onto scoring.DefaultWeights.
// Keys absent from the file keep their defaults. An empty path yields the
// defaults unchanged.
func LoadWeights(path string) (scoring.Weights, error) {
	w := scoring.DefaultWeights()
	if path == "" {
		return w, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return scoring.Weights{}, fmt.Errorf("read weights: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return scoring.Weights{}, fmt.Errorf("%s: parse weights: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return scoring.Weights{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}
