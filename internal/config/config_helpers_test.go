package config

import (
	"os"
	"path/filepath"
	"testing"

	"promptab/internal/spec"
)

// validExperiment returns a normalized experiment used by validation tests.
func validExperiment() spec.Experiment {
	exp := spec.Experiment{
		Version: 1,
		Test:    spec.TestConfig{ID: "refund-tone"},
		Variants: []spec.VariantConfig{
			{ID: "terse", Template: "Reply tersely: {{input}}", Model: "gpt-3.5-turbo"},
			{ID: "friendly", Template: "Reply kindly: {{input}}", Model: "gpt-4o-mini"},
		},
		Inputs: []spec.InputConfig{{ID: "refund", Prompt: "I want my money back"}},
		Config: spec.RunConfig{MinSampleSize: 10},
	}
	Normalize(&exp)
	return exp
}

// writeExperiment writes payload to dir/name and returns the path.
func writeExperiment(t *testing.T, dir, name, payload string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write experiment: %v", err)
	}
	return path
}

const minimalExperiment = `version: 1
variants:
  - id: a
    template: "A: {{input}}"
    model: gpt-3.5-turbo
  - id: b
    template: "B: {{input}}"
    model: gpt-4o-mini
inputs:
  - id: q1
    prompt: hello
`
