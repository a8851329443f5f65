package config

import (
	"fmt"
	"os"

	"promptab/internal/spec"
)

// Load reads, parses, normalizes, and validates an experiment file. A blank
// test id defaults to the file name without extension.
func Load(path string) (spec.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return spec.Experiment{}, fmt.Errorf("read experiment: %w", err)
	}
	exp, err := spec.ParseExperiment(data)
	if err != nil {
		return spec.Experiment{}, err
	}
	if exp.Test.ID == "" {
		exp.Test.ID = idFromPath(path)
	}
	Normalize(&exp)
	if err := Validate(&exp); err != nil {
		return spec.Experiment{}, err
	}
	return exp, nil
}
