package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptab/internal/config"
	"promptab/internal/duckdb"
	"promptab/internal/provider"
	"promptab/internal/spec"
	"promptab/internal/store"
	"promptab/internal/store/memory"
)

// newGenerator builds the generation backend for an experiment. Tests replace
// it with a scripted generator.
var newGenerator = func(exp spec.Experiment) (provider.Generator, error) {
	router, err := provider.RouterFromEnv(exp.Provider.Default, config.Providers(exp))
	if err != nil {
		return nil, err
	}
	return router, nil
}

// resolveExperimentPath normalizes an experiment path or finds one from CWD.
func resolveExperimentPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return config.FindExperimentPath("")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve experiment path: %w", err)
	}
	return abs, nil
}

// loadExperiment resolves, loads and validates the experiment file.
func loadExperiment(path string) (spec.Experiment, string, error) {
	resolved, err := resolveExperimentPath(path)
	if err != nil {
		return spec.Experiment{}, "", err
	}
	exp, err := config.Load(resolved)
	if err != nil {
		return spec.Experiment{}, resolved, err
	}
	return exp, resolved, nil
}

// openStore opens a DuckDB store at dbPath, or an in-memory store when dbPath
// is empty. The returned close func is never nil.
func openStore(ctx context.Context, dbPath string) (store.Store, func() error, error) {
	if strings.TrimSpace(dbPath) == "" {
		return memory.New(), func() error { return nil }, nil
	}
	db, err := duckdb.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return db, db.Close, nil
}

// newLogger writes text logs to stderr. Only errors are shown by default so
// the report stays readable.
func newLogger(stderr io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// metricsServer serves a registry on addr until shutdown is called.
type metricsServer struct {
	server   *http.Server
	listener net.Listener
	done     chan error
}

func startMetricsServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) (*metricsServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &metricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
		done:     make(chan error, 1),
	}
	go func() {
		err := srv.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		srv.done <- err
	}()
	logger.Info("serving metrics", "addr", listener.Addr().String())
	return srv, nil
}

// Addr returns the bound address.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *metricsServer) shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
