package config

import (
	"errors"
	"fmt"
	"strings"

	"promptab/internal/abtest"
	"promptab/internal/provider"
	"promptab/internal/spec"
)

// ValidationError is the aggregated list of experiment problems.
type ValidationError = abtest.ValidationError

// Issue captures a validation problem with a field.
type Issue = abtest.Issue

// Validate checks an experiment for correctness. It expects Normalize to have run.
func Validate(exp *spec.Experiment) error {
	collector := &issueCollector{}

	if exp.Version == 0 {
		collector.add("version", "is required")
	} else if exp.Version != 1 {
		collector.add("version", fmt.Sprintf("unsupported version %d", exp.Version))
	}

	validateProvider(exp, collector.add)
	validateVariants(exp, collector.add)
	validatePricing(exp, collector.add)
	validateNotify(exp, collector.add)

	if err := abtest.Validate(Test(*exp)); err != nil {
		var validationErr *abtest.ValidationError
		if !errors.As(err, &validationErr) {
			return err
		}
		for _, issue := range validationErr.Issues {
			if !collector.has(issue.Field) {
				collector.issues = append(collector.issues, issue)
			}
		}
	}
	return collector.result()
}

func validateProvider(exp *spec.Experiment, add issueAdder) {
	if !knownProvider(exp.Provider.Default) {
		add("provider.default", fmt.Sprintf("unsupported provider %q", exp.Provider.Default))
	}
	if exp.Provider.Workers < 0 {
		add("provider.workers", "must be >= 0")
	}
	if exp.Provider.DispatchSpacing < 0 {
		add("provider.dispatch_spacing", "must be >= 0")
	}
}

func validateVariants(exp *spec.Experiment, add issueAdder) {
	for i, variant := range exp.Variants {
		prefix := fmt.Sprintf("variants[%d]", i)
		if !knownProvider(variant.Provider) {
			add(prefix+".provider", fmt.Sprintf("unsupported provider %q", variant.Provider))
		}
		if variant.Params.MaxTokens < 0 {
			add(prefix+".params.max_tokens", "must be >= 0")
		}
		if temp := variant.Params.Temperature; temp != nil && (*temp < 0 || *temp > 2) {
			add(prefix+".params.temperature", "must be between 0 and 2")
		}
		if topP := variant.Params.TopP; topP != nil && (*topP <= 0 || *topP > 1) {
			add(prefix+".params.top_p", "must be in (0, 1]")
		}
		names := map[string]struct{}{}
		for j, variable := range variant.Variables {
			field := fmt.Sprintf("%s.variables[%d].name", prefix, j)
			if variable.Name == "" {
				add(field, "is required")
				continue
			}
			if _, exists := names[variable.Name]; exists {
				add(field, fmt.Sprintf("duplicate variable %q", variable.Name))
			}
			names[variable.Name] = struct{}{}
		}
	}
}

// validatePricing requires an explicit price for every variant model.
func validatePricing(exp *spec.Experiment, add issueAdder) {
	for model, price := range exp.Pricing.Models {
		if strings.TrimSpace(model) == "" {
			add("pricing.models", "model id is required")
		}
		if price.InputPer1K < 0 || price.OutputPer1K < 0 {
			add(fmt.Sprintf("pricing.models.%s", model), "prices must be >= 0")
		}
	}
	table, err := PricingTable(*exp)
	if err != nil {
		add("pricing.aliases", err.Error())
		return
	}
	for i, variant := range exp.Variants {
		if variant.Model == "" {
			continue
		}
		if _, ok := table.Lookup(variant.Model); !ok {
			add(fmt.Sprintf("variants[%d].model", i), fmt.Sprintf("no price for model %q; add it under pricing.models or pricing.aliases", variant.Model))
		}
	}
}

func validateNotify(exp *spec.Experiment, add issueAdder) {
	kafka := exp.Notify.Kafka
	if len(kafka.Brokers) > 0 && strings.TrimSpace(kafka.Topic) == "" {
		add("notify.kafka.topic", "is required when brokers are set")
	}
	if len(kafka.Brokers) == 0 && strings.TrimSpace(kafka.Topic) != "" {
		add("notify.kafka.brokers", "at least one broker is required when a topic is set")
	}
	for i, broker := range kafka.Brokers {
		if strings.TrimSpace(broker) == "" {
			add(fmt.Sprintf("notify.kafka.brokers[%d]", i), "is required")
		}
	}
}

func knownProvider(name string) bool {
	return name == provider.OpenAIName || name == provider.AnthropicName
}
