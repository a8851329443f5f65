package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"promptab/internal/reportserver"
)

// TestServeCommandRequiresDBPath verifies serve fails when no DB argument is provided.
func TestServeCommandRequiresDBPath(t *testing.T) {
	cmd := findCommand("serve")
	if cmd == nil {
		t.Fatalf("serve command not found")
	}
	var stdout, stderr bytes.Buffer
	if code := cmd.Run([]string{}, &stdout, &stderr); code != ExitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if code := cmd.Run([]string{filepath.Join(t.TempDir(), "absent.duckdb")}, &stdout, &stderr); code != ExitError {
		t.Fatalf("expected error exit for missing file, got %d", code)
	}
}

// TestServeCommandPassesConfig ensures serve forwards parsed config to the server layer.
func TestServeCommandPassesConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.duckdb")
	if err := os.WriteFile(dbPath, []byte("duckdb"), 0o644); err != nil {
		t.Fatalf("write temp db: %v", err)
	}
	stubSignals(t, context.Background())

	var gotConfig reportserver.Config
	origServe := serveReport
	serveReport = func(_ context.Context, cfg reportserver.Config) error {
		gotConfig = cfg
		return nil
	}
	t.Cleanup(func() { serveReport = origServe })

	var stdout, stderr bytes.Buffer
	code := Run([]string{"serve", "--addr", "127.0.0.1:5050", dbPath}, &stdout, &stderr)
	if code != ExitOK {
		t.Fatalf("expected exit ok, got %d: %s", code, stderr.String())
	}
	if gotConfig.Addr != "127.0.0.1:5050" {
		t.Fatalf("unexpected addr: %s", gotConfig.Addr)
	}
	if gotConfig.DBPath != dbPath || gotConfig.Logger == nil {
		t.Fatalf("unexpected config: %+v", gotConfig)
	}
}
