package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"promptab/internal/config"
	"promptab/internal/runner"
	"promptab/internal/store"
	"promptab/internal/store/memory"
)

// runCompare builds the handler for the compare command.
func runCompare(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		flags.SetOutput(stderr)
		file := flags.String("file", "", "Path to experiment file (default: search for "+config.DefaultFileName+")")
		variantA := flags.String("a", "", "First variant id")
		variantB := flags.String("b", "", "Second variant id")
		inputID := flags.String("input", "", "Input id")
		asJSON := flags.Bool("json", false, "Print the comparison as JSON")
		noColor := flags.Bool("no-color", false, "Disable colored output")
		if code, ok := parseFlags(cmd, flags, args, stdout, stderr); !ok {
			return code
		}
		var missing []string
		for _, required := range []struct{ name, value string }{
			{"--a", *variantA}, {"--b", *variantB}, {"--input", *inputID},
		} {
			if strings.TrimSpace(required.value) == "" {
				missing = append(missing, required.name)
			}
		}
		if len(missing) > 0 {
			fmt.Fprintf(stderr, "Missing %s\n", strings.Join(missing, ", "))
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}

		exp, _, err := loadExperiment(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Invalid experiment:\n%v\n", err)
			return ExitError
		}
		table, err := config.PricingTable(exp)
		if err != nil {
			fmt.Fprintf(stderr, "Invalid pricing: %v\n", err)
			return ExitError
		}
		generator, err := newGenerator(exp)
		if err != nil {
			fmt.Fprintf(stderr, "Provider setup failed: %v\n", err)
			return ExitError
		}

		ctx, stop := signalContext()
		defer stop()
		st := memory.New()
		if err := store.Seed(ctx, st, config.Test(exp)); err != nil {
			fmt.Fprintf(stderr, "Seed failed: %v\n", err)
			return ExitError
		}
		logger := newLogger(stderr, false)
		orch, err := runner.New(runner.Options{
			Store:  st,
			Runner: runner.NewSampleRunner(generator, table),
			Logger: logger,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Setup failed: %v\n", err)
			return ExitError
		}
		defer closeOrchestrator(orch, logger)

		result, err := orch.CompareSingle(ctx, *variantA, *variantB, *inputID)
		if err != nil {
			fmt.Fprintf(stderr, "Compare failed: %v\n", err)
			return ExitError
		}

		if *asJSON {
			encoder := json.NewEncoder(stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				fmt.Fprintf(stderr, "Failed to encode comparison: %v\n", err)
				return ExitError
			}
		} else {
			printComparison(stdout, result, *noColor || !isTerminal(stdout))
		}
		if result.A.Result == nil && result.B.Result == nil {
			return ExitError
		}
		return ExitOK
	}
}

var deltaStyle = lipgloss.NewStyle().Bold(true)

func printComparison(w io.Writer, result runner.CompareResult, noColor bool) {
	fmt.Fprintf(w, "Input %s (session %s)\n", result.InputID, result.SessionID)
	for _, side := range []runner.CompareSide{result.A, result.B} {
		if side.Result == nil {
			fmt.Fprintf(w, "  %-12s error: %s\n", side.VariantID, side.Error)
			continue
		}
		r := side.Result
		fmt.Fprintf(w, "  %-12s $%.6f  %s  %d tokens\n", side.VariantID, r.Cost.TotalCost, r.Latency.Round(time.Millisecond), r.Usage.TotalTokens)
		fmt.Fprintf(w, "  %-12s %s\n", "", firstLine(r.Response))
	}
	if !result.Both() {
		return
	}
	delta := fmt.Sprintf("Delta (a - b): $%.6f, %.0fms", result.CostDelta, result.LatencyDeltaMs)
	if !noColor {
		delta = deltaStyle.Render(delta)
	}
	fmt.Fprintln(w, delta)
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	const max = 80
	if len(line) > max {
		return line[:max-3] + "..."
	}
	return line
}
