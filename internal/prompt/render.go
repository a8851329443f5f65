package prompt

import (
	"fmt"
	"strings"

	"promptab/internal/abtest"
)

// InputVariable is bound to TestInput.Prompt unless the input supplies it.
const InputVariable = "input"

// MissingVariablesError lists placeholders with no value for a sample.
type MissingVariablesError struct {
	VariantID string
	InputID   string
	Names     []string
}

func (err *MissingVariablesError) Error() string {
	return fmt.Sprintf("variant %q input %q: missing variables: %s", err.VariantID, err.InputID, strings.Join(err.Names, ", "))
}

// Variables resolves the value set for one sample: declared defaults first,
// then input variables, then the reserved input variable. Optional declared
// variables with no value resolve to the empty string.
func Variables(variant abtest.PromptVariant, input abtest.TestInput) map[string]string {
	vars := make(map[string]string, len(variant.Variables)+len(input.Variables)+1)
	for _, decl := range variant.Variables {
		if decl.Default != "" {
			vars[decl.Name] = decl.Default
		} else if !decl.Required {
			vars[decl.Name] = ""
		}
	}
	for name, value := range input.Variables {
		vars[name] = value
	}
	if _, ok := input.Variables[InputVariable]; !ok {
		vars[InputVariable] = input.Prompt
	}
	return vars
}

// Render produces the final prompt for a variant and input. Every placeholder
// in the template must resolve.
func Render(variant abtest.PromptVariant, input abtest.TestInput) (string, error) {
	vars := Variables(variant, input)
	var missing []string
	for _, variable := range ExtractVariables(variant.Template) {
		if _, ok := vars[variable.Name]; !ok {
			missing = append(missing, variable.Name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingVariablesError{VariantID: variant.ID, InputID: input.ID, Names: missing}
	}
	return Interpolate(variant.Template, vars), nil
}
