package cli

import (
	"flag"
	"fmt"
	"io"

	"promptab/internal/abtest"
	"promptab/internal/config"
)

// runValidate builds the handler for the validate command.
func runValidate(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		flags.SetOutput(stderr)
		file := flags.String("file", "", "Path to experiment file (default: search for "+config.DefaultFileName+")")
		if code, ok := parseFlags(cmd, flags, args, stdout, stderr); !ok {
			return code
		}

		exp, _, err := loadExperiment(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed:\n%v\n", err)
			return ExitError
		}

		_, total := abtest.PlanTotals(config.Test(exp))
		fmt.Fprintf(stdout, "Experiment OK: %s (%d variants, %d inputs, %d samples planned)\n",
			exp.Test.ID, len(exp.Variants), len(exp.Inputs), total)
		return ExitOK
	}
}
