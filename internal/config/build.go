package config

import (
	"fmt"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
	"promptab/internal/spec"
)

// Test converts an experiment into a draft ABTest with defaulted configuration.
func Test(exp spec.Experiment) abtest.ABTest {
	test := abtest.ABTest{
		ID:          exp.Test.ID,
		Name:        exp.Test.Name,
		Description: exp.Test.Description,
		Status:      abtest.StatusDraft,
	}
	for _, variant := range exp.Variants {
		test.Variants = append(test.Variants, Variant(variant))
	}
	for _, input := range exp.Inputs {
		test.Inputs = append(test.Inputs, abtest.TestInput{
			ID:             input.ID,
			Prompt:         input.Prompt,
			Variables:      input.Variables,
			ExpectedOutput: input.ExpectedOutput,
			Category:       input.Category,
		})
	}
	test.Config = abtest.Configuration{
		MinSampleSize:      exp.Config.MinSampleSize,
		MaxSampleSize:      exp.Config.MaxSampleSize,
		ConfidenceLevel:    exp.Config.ConfidenceLevel,
		TrafficSplit:       exp.Config.TrafficSplit,
		MaxDuration:        exp.Config.MaxDuration,
		StopOnSignificance: exp.Config.StopOnSignificance,
		PrimaryMetric:      abtest.Metric(exp.Config.PrimaryMetric),
	}.WithDefaults(len(test.Variants))
	return test
}

// Variant converts one variant entry.
func Variant(cfg spec.VariantConfig) abtest.PromptVariant {
	variant := abtest.PromptVariant{
		ID:       cfg.ID,
		Name:     cfg.Name,
		Version:  cfg.Version,
		Template: cfg.Template,
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Params: abtest.GenerationParams{
			Temperature:      cfg.Params.Temperature,
			MaxTokens:        cfg.Params.MaxTokens,
			TopP:             cfg.Params.TopP,
			FrequencyPenalty: cfg.Params.FrequencyPenalty,
			PresencePenalty:  cfg.Params.PresencePenalty,
		},
		Tags:     cfg.Tags,
		ParentID: cfg.ParentID,
	}
	for _, variable := range cfg.Variables {
		variant.Variables = append(variant.Variables, abtest.VariableDecl{
			Name:     variable.Name,
			Required: variable.Required,
			Default:  variable.Default,
		})
	}
	return variant
}

// PricingTable seeds the default table with the experiment's prices, then
// registers its aliases.
func PricingTable(exp spec.Experiment) (*pricing.Table, error) {
	table := pricing.DefaultTable()
	for model, price := range exp.Pricing.Models {
		table.Set(model, pricing.Price{InputPer1K: price.InputPer1K, OutputPer1K: price.OutputPer1K})
	}
	for alias, target := range exp.Pricing.Aliases {
		if err := table.WithAlias(alias, target); err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
	}
	return table, nil
}

// Providers returns the distinct provider names used by the experiment.
func Providers(exp spec.Experiment) []string {
	seen := map[string]struct{}{exp.Provider.Default: {}}
	names := []string{exp.Provider.Default}
	for _, variant := range exp.Variants {
		if _, ok := seen[variant.Provider]; ok || variant.Provider == "" {
			continue
		}
		seen[variant.Provider] = struct{}{}
		names = append(names, variant.Provider)
	}
	return names
}
