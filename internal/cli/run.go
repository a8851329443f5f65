package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"promptab/internal/abtest"
	"promptab/internal/config"
	"promptab/internal/metrics"
	"promptab/internal/notify"
	"promptab/internal/report"
	"promptab/internal/runner"
	"promptab/internal/spec"
	"promptab/internal/store"
	"promptab/internal/tracing"
	"promptab/internal/ui/live"
)

// runParams are the parsed run flags.
type runParams struct {
	file        string
	dbPath      string
	outPath     string
	htmlPath    string
	uiMode      string
	noColor     bool
	verbose     bool
	trace       bool
	metricsAddr string
	workers     int
	testID      string
}

// signalContext is the cancellation source for a run; tests replace it.
var signalContext = func() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runRun builds the handler for the run command.
func runRun(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}

		var params runParams
		flags := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		flags.SetOutput(stderr)
		flags.StringVar(&params.file, "file", "", "Path to experiment file (default: search for "+config.DefaultFileName+")")
		flags.StringVar(&params.dbPath, "db", "", "DuckDB file to persist the test in (default: in memory)")
		flags.StringVar(&params.outPath, "out", "", "Write results JSON to this path")
		flags.StringVar(&params.htmlPath, "html", "", "Write an HTML report to this path")
		flags.StringVar(&params.uiMode, "ui", uiAuto, "Console UI mode: auto|live|plain")
		flags.BoolVar(&params.noColor, "no-color", false, "Disable colored output")
		flags.BoolVar(&params.verbose, "verbose", false, "Log run progress to stderr")
		flags.BoolVar(&params.trace, "trace", false, "Write OpenTelemetry spans to stderr")
		flags.StringVar(&params.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
		flags.IntVar(&params.workers, "workers", 0, "Concurrent generation calls (default: provider.workers or 4)")
		flags.StringVar(&params.testID, "test-id", "", "Test id (default: experiment id plus a timestamp)")
		if code, ok := parseFlags(cmd, flags, args, stdout, stderr); !ok {
			return code
		}
		if params.workers < 0 {
			fmt.Fprintln(stderr, "--workers must be >= 0")
			return ExitUsage
		}

		decision, err := resolveUIMode(params.uiMode, params.verbose, params.noColor, stdout)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsage
		}
		if decision.warning != "" {
			fmt.Fprintln(stderr, decision.warning)
		}

		exp, _, err := loadExperiment(params.file)
		if err != nil {
			fmt.Fprintf(stderr, "Invalid experiment:\n%v\n", err)
			return ExitError
		}

		ctx, stop := signalContext()
		defer stop()
		results, err := executeRun(ctx, exp, params, decision, stdout, stderr)
		if err != nil {
			fmt.Fprintf(stderr, "Run failed: %v\n", err)
			return ExitError
		}

		if err := report.Text(stdout, results, report.TextOptions{NoColor: decision.noColor}); err != nil {
			fmt.Fprintf(stderr, "Failed to print report: %v\n", err)
			return ExitError
		}
		if code := writeOutputs(context.Background(), results, params.outPath, params.htmlPath, stdout, stderr); code != ExitOK {
			return code
		}
		if results.Test.Status == abtest.StatusFailed {
			return ExitError
		}
		return ExitOK
	}
}

// executeRun seeds the test, starts it and blocks until it ends. A cancelled
// ctx stops the test; the partial results are still returned.
func executeRun(ctx context.Context, exp spec.Experiment, params runParams, decision uiModeDecision, stdout, stderr io.Writer) (runner.Results, error) {
	logger := newLogger(stderr, params.verbose)

	table, err := config.PricingTable(exp)
	if err != nil {
		return runner.Results{}, err
	}
	generator, err := newGenerator(exp)
	if err != nil {
		return runner.Results{}, err
	}

	st, closeStore, err := openStore(ctx, params.dbPath)
	if err != nil {
		return runner.Results{}, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	test := config.Test(exp)
	test.ID = strings.TrimSpace(params.testID)
	if test.ID == "" {
		test.ID, err = runner.NewTestID(exp.Test.ID, time.Now())
		if err != nil {
			return runner.Results{}, err
		}
	}
	if err := store.Seed(ctx, st, test); err != nil {
		return runner.Results{}, fmt.Errorf("seed test: %w", err)
	}

	sampleRunner := runner.NewSampleRunner(generator, table)
	var tracer tracing.Sink = tracing.Nop{}
	if params.trace {
		shutdown, err := tracing.Setup(stderr, "promptab")
		if err != nil {
			return runner.Results{}, err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("flush traces", "error", err)
			}
		}()
		tracer = tracing.NewOTel(otel.Tracer("promptab"))
	}

	registry := prometheus.NewRegistry()
	observers := runner.Observers{metrics.New(registry)}
	if params.metricsAddr != "" {
		srv, err := startMetricsServer(params.metricsAddr, registry, logger)
		if err != nil {
			return runner.Results{}, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.shutdown(shutdownCtx); err != nil {
				logger.Error("stop metrics server", "error", err)
			}
		}()
	}
	var ui *live.Controller
	if decision.useLive {
		ui = live.Start(stdout, live.Options{NoColor: decision.noColor})
		observers = append(observers, ui)
	}

	fanout, closeNotify, err := newNotifier(exp, logger)
	if err != nil {
		return runner.Results{}, err
	}
	defer closeNotify()

	workers := params.workers
	if workers == 0 {
		workers = exp.Provider.Workers
	}
	orch, err := runner.New(runner.Options{
		Store:           st,
		Runner:          sampleRunner,
		Workers:         workers,
		DispatchSpacing: exp.Provider.DispatchSpacing,
		Tracer:          tracer,
		Logger:          logger,
		Observer:        observers,
		OnComplete:      fanout.OnComplete,
	})
	if err != nil {
		return runner.Results{}, err
	}
	defer closeOrchestrator(orch, logger)

	if _, err := orch.Start(ctx, test.ID); err != nil {
		ui.Close()
		ui.Wait()
		return runner.Results{}, err
	}
	logger.Info("test started", "test_id", test.ID)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("stopping test", "test_id", test.ID)
			if _, err := orch.Stop(context.Background(), test.ID); err != nil {
				var stateErr *abtest.InvalidStateError
				if !errors.As(err, &stateErr) {
					logger.Error("stop test", "test_id", test.ID, "error", err)
				}
			}
		case <-orch.Done(test.ID):
		}
	}()

	_, waitErr := orch.Wait(context.Background(), test.ID)
	ui.Wait()
	if waitErr != nil {
		logger.Error("test ended with error", "test_id", test.ID, "error", waitErr)
	}
	return orch.GetResults(context.Background(), test.ID)
}

func closeOrchestrator(orch *runner.Orchestrator, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.Close(ctx); err != nil {
		logger.Error("close orchestrator", "error", err)
	}
}

// newNotifier builds the completion fan-out from the experiment's notify block.
func newNotifier(exp spec.Experiment, logger *slog.Logger) (*notify.Fanout, func(), error) {
	fanout := &notify.Fanout{Logger: logger, Timeout: 10 * time.Second}
	kafkaCfg := exp.Notify.Kafka
	if len(kafkaCfg.Brokers) == 0 {
		return fanout, func() {}, nil
	}
	publisher, err := notify.NewKafkaPublisher(notify.KafkaConfig{Brokers: kafkaCfg.Brokers, Topic: kafkaCfg.Topic})
	if err != nil {
		return nil, nil, err
	}
	fanout.Handlers = append(fanout.Handlers, publisher)
	return fanout, func() {
		if err := publisher.Close(); err != nil {
			logger.Error("close kafka publisher", "error", err)
		}
	}, nil
}

// writeOutputs stores the optional JSON and HTML artifacts.
func writeOutputs(ctx context.Context, results runner.Results, outPath, htmlPath string, stdout, stderr io.Writer) int {
	if outPath != "" {
		if err := report.WriteResults(outPath, results); err != nil {
			fmt.Fprintf(stderr, "Failed to write results: %v\n", err)
			return ExitError
		}
		fmt.Fprintf(stdout, "Results: %s\n", outPath)
	}
	if htmlPath != "" {
		if err := writeHTML(ctx, htmlPath, results); err != nil {
			fmt.Fprintf(stderr, "Failed to write report: %v\n", err)
			return ExitError
		}
		fmt.Fprintf(stdout, "Report: %s\n", htmlPath)
	}
	return ExitOK
}

func writeHTML(ctx context.Context, path string, results runner.Results) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.HTML(ctx, file, results); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
