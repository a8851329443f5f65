package abtest

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// TrafficSplitEpsilon is the tolerance on the traffic split sum.
const TrafficSplitEpsilon = 0.01

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

// fieldValidator returns a shared validator that reports json field names.
func fieldValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate checks that a test can be started. It never mutates the test.
func Validate(test ABTest) error {
	var issues []Issue
	add := func(field, message string) {
		issues = append(issues, Issue{Field: field, Message: message})
	}

	if strings.TrimSpace(test.ID) == "" {
		add("id", "is required")
	}
	if len(test.Variants) < 2 {
		add("variants", fmt.Sprintf("at least 2 variants are required, got %d", len(test.Variants)))
	}
	if len(test.Inputs) < 1 {
		add("inputs", "at least 1 input is required")
	}

	variantIDs := map[string]struct{}{}
	for i, variant := range test.Variants {
		prefix := fmt.Sprintf("variants[%d]", i)
		id := strings.TrimSpace(variant.ID)
		if id == "" {
			add(prefix+".id", "is required")
		} else if _, exists := variantIDs[id]; exists {
			add("variants.id", fmt.Sprintf("duplicate id %q", id))
		} else {
			variantIDs[id] = struct{}{}
		}
		if strings.TrimSpace(variant.Model) == "" {
			add(prefix+".model", "is required")
		}
		if strings.TrimSpace(variant.Template) == "" {
			add(prefix+".template", "is required")
		}
	}

	inputIDs := map[string]struct{}{}
	for i, input := range test.Inputs {
		id := strings.TrimSpace(input.ID)
		if id == "" {
			add(fmt.Sprintf("inputs[%d].id", i), "is required")
		} else if _, exists := inputIDs[id]; exists {
			add("inputs.id", fmt.Sprintf("duplicate id %q", id))
		} else {
			inputIDs[id] = struct{}{}
		}
	}

	issues = append(issues, ValidateConfiguration(test.Config, len(test.Variants))...)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidateConfiguration checks field rules and the traffic split against the
// number of variants.
func ValidateConfiguration(cfg Configuration, variantCount int) []Issue {
	var issues []Issue
	if err := fieldValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []Issue{{Field: "config", Message: err.Error()}}
		}
		for _, fieldErr := range fieldErrs {
			issues = append(issues, Issue{
				Field:   "config." + trimNamespace(fieldErr.Namespace()),
				Message: describeRule(fieldErr),
			})
		}
	}

	if cfg.MaxSampleSize > 0 && cfg.MaxSampleSize < cfg.MinSampleSize {
		issues = append(issues, Issue{Field: "config.max_sample_size", Message: "must be >= min_sample_size"})
	}
	if len(cfg.TrafficSplit) != variantCount {
		issues = append(issues, Issue{
			Field:   "config.traffic_split",
			Message: fmt.Sprintf("has %d entries, want one per variant (%d)", len(cfg.TrafficSplit), variantCount),
		})
	} else if sum := sumSplit(cfg.TrafficSplit); math.Abs(sum-100) > TrafficSplitEpsilon {
		issues = append(issues, Issue{
			Field:   "config.traffic_split",
			Message: fmt.Sprintf("must sum to 100, got %g", sum),
		})
	}
	return issues
}

func sumSplit(split []float64) float64 {
	total := 0.0
	for _, value := range split {
		total += value
	}
	return total
}

// trimNamespace drops the leading struct name from a validator namespace.
func trimNamespace(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func describeRule(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "gte":
		return "must be >= " + fieldErr.Param()
	case "lte":
		return "must be <= " + fieldErr.Param()
	case "gt":
		return "must be > " + fieldErr.Param()
	case "lt":
		return "must be < " + fieldErr.Param()
	case "oneof":
		return "must be one of: " + fieldErr.Param()
	default:
		return "failed rule " + fieldErr.Tag()
	}
}
