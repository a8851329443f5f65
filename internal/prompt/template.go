package prompt

import (
	"regexp"
	"strings"
)

// placeholderPattern matches {{ name }} with optional inner whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)

// Variable is a placeholder discovered in a template.
type Variable struct {
	Name     string
	Required bool
}

// Interpolate replaces every placeholder that has a value in vars.
// Placeholders without a value are left unchanged so templates can be filled
// in stages.
func Interpolate(template string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(template, "{{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// ExtractVariables returns the distinct placeholder names in first-occurrence
// order. Every variable is required.
func ExtractVariables(template string) []Variable {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]struct{}, len(matches))
	variables := make([]Variable, 0, len(matches))
	for _, match := range matches {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		variables = append(variables, Variable{Name: name, Required: true})
	}
	return variables
}

// Names returns just the names from ExtractVariables.
func Names(template string) []string {
	variables := ExtractVariables(template)
	names := make([]string, 0, len(variables))
	for _, variable := range variables {
		names = append(names, variable.Name)
	}
	return names
}
