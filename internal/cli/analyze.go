package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"promptab/internal/duckdb"
	"promptab/internal/report"
	"promptab/internal/runner"
	"promptab/internal/stats"
)

// runAnalyze builds the handler for the analyze command.
func runAnalyze(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		flags.SetOutput(stderr)
		dbPath := flags.String("db", "", "DuckDB file written by run --db")
		testID := flags.String("test", "", "Test id stored in --db")
		resultsPath := flags.String("results", "", "Results JSON written by run --out")
		outPath := flags.String("out", "", "Write results JSON to this path")
		htmlPath := flags.String("html", "", "Write an HTML report to this path")
		noColor := flags.Bool("no-color", false, "Disable colored output")
		if code, ok := parseFlags(cmd, flags, args, stdout, stderr); !ok {
			return code
		}

		fromDB := strings.TrimSpace(*dbPath) != ""
		fromFile := strings.TrimSpace(*resultsPath) != ""
		switch {
		case fromDB == fromFile:
			fmt.Fprintln(stderr, "Provide exactly one of --db or --results")
			printCommandUsage(cmd, stderr)
			return ExitUsage
		case fromDB && strings.TrimSpace(*testID) == "":
			fmt.Fprintln(stderr, "Missing --test")
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}

		ctx := context.Background()
		plain := *noColor || !isTerminal(stdout)
		var results runner.Results
		var summaries []duckdb.VariantSummary
		if fromDB {
			var err error
			results, summaries, err = analyzeStored(ctx, *dbPath, *testID)
			if err != nil {
				fmt.Fprintf(stderr, "Analyze failed: %v\n", err)
				return ExitError
			}
		} else {
			loaded, err := report.LoadResults(*resultsPath)
			if err != nil {
				fmt.Fprintf(stderr, "Analyze failed: %v\n", err)
				return ExitError
			}
			results = runner.Analyze(stats.New(loaded.Test.Config.ConfidenceLevel), loaded.Test)
		}

		if err := report.Text(stdout, results, report.TextOptions{NoColor: plain}); err != nil {
			fmt.Fprintf(stderr, "Failed to print report: %v\n", err)
			return ExitError
		}
		if len(summaries) > 0 {
			fmt.Fprintln(stdout, renderSummaries(summaries, plain))
		}
		return writeOutputs(ctx, results, *outPath, *htmlPath, stdout, stderr)
	}
}

// analyzeStored reads a test from DuckDB and recomputes its analysis.
func analyzeStored(ctx context.Context, dbPath, testID string) (runner.Results, []duckdb.VariantSummary, error) {
	db, err := duckdb.Open(ctx, dbPath)
	if err != nil {
		return runner.Results{}, nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer db.Close()

	test, err := db.GetTest(ctx, testID)
	if err != nil {
		return runner.Results{}, nil, err
	}
	summaries, err := db.VariantSummaries(ctx, testID)
	if err != nil {
		return runner.Results{}, nil, err
	}
	return runner.Analyze(stats.New(test.Config.ConfidenceLevel), test), summaries, nil
}

func renderSummaries(summaries []duckdb.VariantSummary, plain bool) string {
	t := table.New().Border(lipgloss.NormalBorder()).
		Headers("Variant", "Samples", "Failures", "Total cost", "Avg tokens", "p95 latency")
	if !plain {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	for _, summary := range summaries {
		t.Row(
			summary.VariantID,
			fmt.Sprintf("%d", summary.Samples),
			fmt.Sprintf("%d", summary.Failures),
			fmt.Sprintf("$%.6f", summary.TotalCost),
			fmt.Sprintf("%.1f", summary.AverageTokens),
			summary.P95Latency.Round(time.Millisecond).String(),
		)
	}
	return "Stored summary\n" + t.String()
}
