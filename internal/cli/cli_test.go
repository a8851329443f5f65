package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"promptab/internal/abtest"
	"promptab/internal/report"
	"promptab/internal/runner"
)

// TestRunPrintsUsage verifies top-level help and unknown commands.
func TestRunPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run(nil, &stdout, &stderr); code != ExitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	for _, name := range []string{"validate", "run", "compare", "analyze"} {
		if !strings.Contains(stdout.String(), name) {
			t.Fatalf("expected usage to list %q:\n%s", name, stdout.String())
		}
	}

	stdout.Reset()
	if code := Run([]string{"--help"}, &stdout, &stderr); code != ExitOK {
		t.Fatalf("expected ok for --help, got %d", code)
	}

	stderr.Reset()
	if code := Run([]string{"bogus"}, &stdout, &stderr); code != ExitUsage {
		t.Fatalf("expected usage exit for unknown command, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command: bogus") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

// TestCommandHelp verifies every command answers --help.
func TestCommandHelp(t *testing.T) {
	for _, cmd := range commands {
		var stdout, stderr bytes.Buffer
		if code := cmd.Run([]string{"--help"}, &stdout, &stderr); code != ExitOK {
			t.Fatalf("%s --help exit %d", cmd.Name, code)
		}
		if !strings.Contains(stdout.String(), "promptab "+cmd.Name) {
			t.Fatalf("%s help missing usage line:\n%s", cmd.Name, stdout.String())
		}
	}
}

// TestValidateCommand verifies success and failure output.
func TestValidateCommand(t *testing.T) {
	path := writeCLIExperiment(t, cliExperiment)
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"validate", "--file", path}, &stdout, &stderr); code != ExitOK {
		t.Fatalf("expected ok, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Experiment OK: refund-tone (2 variants, 1 inputs, 10 samples planned)") {
		t.Fatalf("unexpected stdout: %s", stdout.String())
	}

	bad := writeCLIExperiment(t, strings.Replace(cliExperiment, "model: gpt-4\n", "model: \"\"\n", 1))
	stdout.Reset()
	stderr.Reset()
	if code := Run([]string{"validate", "--file", bad}, &stdout, &stderr); code != ExitError {
		t.Fatalf("expected error exit, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Validation failed") || !strings.Contains(stderr.String(), "variants[1].model") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}

	stderr.Reset()
	if code := Run([]string{"validate", "extra"}, &stdout, &stderr); code != ExitUsage {
		t.Fatalf("expected usage exit for positional args, got %d", code)
	}
}

// TestRunCommandWritesOutputs runs a full test against a scripted backend and
// checks the report, the JSON results and the HTML page.
func TestRunCommandWritesOutputs(t *testing.T) {
	generator := pricedByModel()
	stubGenerator(t, generator)
	stubSignals(t, context.Background())

	path := writeCLIExperiment(t, cliExperiment)
	dir := t.TempDir()
	outPath := filepath.Join(dir, "results.json")
	htmlPath := filepath.Join(dir, "report.html")
	var stdout, stderr bytes.Buffer
	code := Run([]string{
		"run", "--file", path, "--ui", "plain", "--no-color",
		"--test-id", "cli-run", "--out", outPath, "--html", htmlPath,
	}, &stdout, &stderr)
	if code != ExitOK {
		t.Fatalf("unexpected exit %d, stderr: %s", code, stderr.String())
	}
	if generator.Calls() != 10 {
		t.Fatalf("expected 10 generation calls, got %d", generator.Calls())
	}
	for _, token := range []string{"cli-run", "Winner: cheap", "* cheap", "premium", "Results: " + outPath} {
		if !strings.Contains(stdout.String(), token) {
			t.Fatalf("expected stdout to include %q:\n%s", token, stdout.String())
		}
	}

	loaded, err := report.LoadResults(outPath)
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if loaded.Test.Status != abtest.StatusCompleted || len(loaded.Test.Results) != 10 {
		t.Fatalf("unexpected stored test: %s with %d results", loaded.Test.Status, len(loaded.Test.Results))
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(html), "Winner: cheap") {
		t.Fatalf("expected html to name the winner")
	}
}

// TestRunCommandAllFailuresExitsWithError verifies a failed test is an error.
func TestRunCommandAllFailuresExitsWithError(t *testing.T) {
	stubGenerator(t, failing())
	stubSignals(t, context.Background())

	path := writeCLIExperiment(t, cliExperiment)
	var stdout, stderr bytes.Buffer
	code := Run([]string{"run", "--file", path, "--ui", "plain", "--test-id", "doomed"}, &stdout, &stderr)
	if code != ExitError {
		t.Fatalf("expected error exit, got %d", code)
	}
	if !strings.Contains(stdout.String(), "failed") || !strings.Contains(stdout.String(), "Winner: none") {
		t.Fatalf("unexpected report:\n%s", stdout.String())
	}
}

// TestRunCommandRejectsBadFlags verifies usage errors before any work.
func TestRunCommandRejectsBadFlags(t *testing.T) {
	path := writeCLIExperiment(t, cliExperiment)
	cases := [][]string{
		{"run", "--file", path, "--ui", "fancy"},
		{"run", "--file", path, "--workers", "-1"},
		{"run", "--nope"},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		if code := Run(args, &stdout, &stderr); code != ExitUsage {
			t.Fatalf("%v: expected usage exit, got %d", args, code)
		}
	}
}

// TestRunThenAnalyzeDatabase verifies analyze reads back a persisted run.
func TestRunThenAnalyzeDatabase(t *testing.T) {
	stubGenerator(t, pricedByModel())
	stubSignals(t, context.Background())

	path := writeCLIExperiment(t, cliExperiment)
	dbPath := filepath.Join(t.TempDir(), "runs.duckdb")
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"run", "--file", path, "--ui", "plain", "--db", dbPath, "--test-id", "persisted"}, &stdout, &stderr); code != ExitOK {
		t.Fatalf("run exit %d: %s", code, stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := Run([]string{"analyze", "--db", dbPath, "--test", "persisted", "--no-color"}, &stdout, &stderr); code != ExitOK {
		t.Fatalf("analyze exit %d: %s", code, stderr.String())
	}
	for _, token := range []string{"persisted", "Winner: cheap", "Stored summary", "p95 latency"} {
		if !strings.Contains(stdout.String(), token) {
			t.Fatalf("expected analyze output to include %q:\n%s", token, stdout.String())
		}
	}

	stderr.Reset()
	if code := Run([]string{"analyze", "--db", dbPath, "--test", "missing"}, &stdout, &stderr); code != ExitError {
		t.Fatalf("expected error for unknown test, got %d", code)
	}
}

// TestAnalyzeResultsFile verifies analysis of a results file and flag rules.
func TestAnalyzeResultsFile(t *testing.T) {
	stubGenerator(t, pricedByModel())
	stubSignals(t, context.Background())

	path := writeCLIExperiment(t, cliExperiment)
	outPath := filepath.Join(t.TempDir(), "results.json")
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"run", "--file", path, "--ui", "plain", "--out", outPath}, &stdout, &stderr); code != ExitOK {
		t.Fatalf("run exit %d: %s", code, stderr.String())
	}

	stdout.Reset()
	if code := Run([]string{"analyze", "--results", outPath, "--no-color"}, &stdout, &stderr); code != ExitOK {
		t.Fatalf("analyze exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Winner: cheap") {
		t.Fatalf("unexpected analyze output:\n%s", stdout.String())
	}

	for _, args := range [][]string{
		{"analyze"},
		{"analyze", "--db", "x.duckdb"},
		{"analyze", "--db", "x.duckdb", "--test", "t", "--results", outPath},
	} {
		if code := Run(args, &stdout, &stderr); code != ExitUsage {
			t.Fatalf("%v: expected usage exit, got %d", args, code)
		}
	}
}

// TestCompareCommand verifies the side-by-side output in text and JSON.
func TestCompareCommand(t *testing.T) {
	generator := pricedByModel()
	stubGenerator(t, generator)
	stubSignals(t, context.Background())

	path := writeCLIExperiment(t, cliExperiment)
	var stdout, stderr bytes.Buffer
	args := []string{"compare", "--file", path, "--a", "cheap", "--b", "premium", "--input", "refund"}
	if code := Run(args, &stdout, &stderr); code != ExitOK {
		t.Fatalf("compare exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Delta (a - b)") || !strings.Contains(stdout.String(), "Input refund") {
		t.Fatalf("unexpected compare output:\n%s", stdout.String())
	}
	if generator.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", generator.Calls())
	}

	stdout.Reset()
	if code := Run(append(args, "--json"), &stdout, &stderr); code != ExitOK {
		t.Fatalf("compare --json exit %d: %s", code, stderr.String())
	}
	var result runner.CompareResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("decode compare json: %v", err)
	}
	if !result.Both() || result.CostDelta >= 0 {
		t.Fatalf("expected cheap to cost less, got %+v", result)
	}

	stderr.Reset()
	if code := Run([]string{"compare", "--file", path, "--a", "cheap"}, &stdout, &stderr); code != ExitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Missing --b, --input") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}

	stderr.Reset()
	if code := Run([]string{"compare", "--file", path, "--a", "cheap", "--b", "ghost", "--input", "refund"}, &stdout, &stderr); code != ExitError {
		t.Fatalf("expected error for unknown variant, got %d", code)
	}
}
