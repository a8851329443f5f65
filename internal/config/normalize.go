package config

import (
	"strings"

	"promptab/internal/provider"
	"promptab/internal/spec"
)

// Normalize trims identifiers and fills defaults that validation relies on.
func Normalize(exp *spec.Experiment) {
	exp.Test.ID = strings.TrimSpace(exp.Test.ID)
	if strings.TrimSpace(exp.Test.Name) == "" {
		exp.Test.Name = exp.Test.ID
	}
	exp.Provider.Default = strings.ToLower(strings.TrimSpace(exp.Provider.Default))
	if exp.Provider.Default == "" {
		exp.Provider.Default = provider.OpenAIName
	}
	for i := range exp.Variants {
		variant := &exp.Variants[i]
		variant.ID = strings.TrimSpace(variant.ID)
		variant.Model = strings.TrimSpace(variant.Model)
		variant.Provider = strings.ToLower(strings.TrimSpace(variant.Provider))
		if variant.Provider == "" {
			variant.Provider = exp.Provider.Default
		}
		if variant.Name == "" {
			variant.Name = variant.ID
		}
		if variant.Version == 0 {
			variant.Version = 1
		}
		for j := range variant.Variables {
			variant.Variables[j].Name = strings.TrimSpace(variant.Variables[j].Name)
		}
	}
	for i := range exp.Inputs {
		exp.Inputs[i].ID = strings.TrimSpace(exp.Inputs[i].ID)
	}
	exp.Config.PrimaryMetric = strings.ToLower(strings.TrimSpace(exp.Config.PrimaryMetric))
}
