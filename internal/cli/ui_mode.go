package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	uiAuto  = "auto"
	uiLive  = "live"
	uiPlain = "plain"
)

// uiModeDecision captures how run output is presented.
type uiModeDecision struct {
	useLive bool
	noColor bool
	warning string
}

// isTerminal reports whether a writer is a TTY.
var isTerminal = defaultIsTerminal

// lookupEnv reads NO_COLOR; swapped in tests.
var lookupEnv = os.LookupEnv

// resolveUIMode decides between the live table and plain output. Verbose
// logging always gets plain output so log lines are not drawn over.
func resolveUIMode(mode string, verbose, noColor bool, stdout io.Writer) (uiModeDecision, error) {
	decision := uiModeDecision{noColor: noColor || !isTerminal(stdout)}
	if _, ok := lookupEnv("NO_COLOR"); ok {
		decision.noColor = true
	}

	switch normalized := strings.ToLower(strings.TrimSpace(mode)); normalized {
	case "", uiAuto:
		decision.useLive = !verbose && isTerminal(stdout)
	case uiLive:
		switch {
		case verbose:
			decision.warning = "Live UI disabled by --verbose; using plain output."
		case !isTerminal(stdout):
			decision.warning = "Live UI requested but stdout is not a TTY; falling back to plain output."
		default:
			decision.useLive = true
		}
	case uiPlain:
	default:
		return uiModeDecision{}, fmt.Errorf("invalid ui mode %q (expected auto|live|plain)", mode)
	}
	return decision, nil
}

func defaultIsTerminal(stdout io.Writer) bool {
	if stdout == nil {
		return false
	}
	if fder, ok := stdout.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}
