package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"promptab/internal/runner"
)

// LoadResults reads a results file written by WriteResults.
func LoadResults(path string) (runner.Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runner.Results{}, err
	}
	var results runner.Results
	if err := json.Unmarshal(data, &results); err != nil {
		return runner.Results{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}

// WriteResults stores results as indented JSON, creating parent directories.
func WriteResults(path string, results runner.Results) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
