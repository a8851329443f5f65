package spec

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseExperiment decodes a single strict YAML document.
func ParseExperiment(data []byte) (Experiment, error) {
	var exp Experiment
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&exp); err != nil {
		if err == io.EOF {
			return Experiment{}, fmt.Errorf("parse experiment: empty document")
		}
		return Experiment{}, fmt.Errorf("parse experiment: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Experiment{}, fmt.Errorf("parse experiment: multiple YAML documents are not supported")
		}
		return Experiment{}, fmt.Errorf("parse experiment: %w", err)
	}
	return exp, nil
}
