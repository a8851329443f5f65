package prompt

import (
	"errors"
	"reflect"
	"testing"

	"promptab/internal/abtest"
)

func TestInterpolateReplacesKnownPlaceholders(t *testing.T) {
	got := Interpolate("Hello {{name}}, {{ greeting }}! {{unknown}}", map[string]string{
		"name":     "Ada",
		"greeting": "welcome",
	})
	want := "Hello Ada, welcome! {{unknown}}"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestInterpolateIsIdempotentWhenResolved(t *testing.T) {
	template := "{{a}} and {{ b }} then {{a}}"
	vars := map[string]string{"a": "x", "b": "y"}
	once := Interpolate(template, vars)
	twice := Interpolate(once, vars)
	if once != twice {
		t.Fatalf("second pass changed output: %q -> %q", once, twice)
	}
	if once != "x and y then x" {
		t.Fatalf("unexpected output: %q", once)
	}
}

func TestInterpolateDoesNotRecurseIntoValues(t *testing.T) {
	got := Interpolate("{{a}}", map[string]string{"a": "{{b}}", "b": "nope"})
	if got != "{{b}}" {
		t.Fatalf("expected substituted value to stay literal, got %q", got)
	}
}

func TestExtractVariablesOrder(t *testing.T) {
	got := Names("{{a}}, {{b}}, {{a}}")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected [a b], got %v", got)
	}
	for _, variable := range ExtractVariables("{{ topic }} {{tone}}") {
		if !variable.Required {
			t.Fatalf("expected %s to be required", variable.Name)
		}
	}
	if vars := ExtractVariables("no placeholders {here}"); len(vars) != 0 {
		t.Fatalf("expected none, got %v", vars)
	}
}

func TestRenderResolvesVariables(t *testing.T) {
	variant := abtest.PromptVariant{
		ID:       "v1",
		Template: "[{{tone}}] {{style}} {{input}}",
		Variables: []abtest.VariableDecl{
			{Name: "tone", Default: "neutral"},
			{Name: "style", Required: false},
		},
	}
	input := abtest.TestInput{ID: "in1", Prompt: "the text", Variables: map[string]string{"tone": "formal"}}
	got, err := Render(variant, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[formal]  the text" {
		t.Fatalf("unexpected render: %q", got)
	}

	input.Variables["input"] = "override"
	got, err = Render(variant, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[formal]  override" {
		t.Fatalf("expected input variable to win over prompt, got %q", got)
	}
}

func TestRenderReportsMissingVariables(t *testing.T) {
	variant := abtest.PromptVariant{
		ID:        "v1",
		Template:  "{{audience}} {{input}} {{format}}",
		Variables: []abtest.VariableDecl{{Name: "audience", Required: true}},
	}
	_, err := Render(variant, abtest.TestInput{ID: "in1", Prompt: "x"})
	var missing *MissingVariablesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingVariablesError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Names, []string{"audience", "format"}) {
		t.Fatalf("unexpected missing names: %v", missing.Names)
	}
}
