package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"promptab/internal/abtest"
	"promptab/internal/duckdb"
	"promptab/internal/pricing"
	"promptab/internal/store"
)

// fixtureConfig defines the JSON config for generating a DuckDB fixture.
type fixtureConfig struct {
	Name     string           `json:"name"`
	Samples  int              `json:"samples"`
	Variants []fixtureVariant `json:"variants"`
}

// fixtureVariant is one synthetic variant with a base cost and latency.
type fixtureVariant struct {
	ID        string  `json:"id"`
	Model     string  `json:"model"`
	Cost      float64 `json:"cost"`
	LatencyMs int     `json:"latency_ms"`
}

func main() {
	configPath := flag.String("config", "", "path to fixture config JSON")
	outPath := flag.String("out", "", "output duckdb file path")
	flag.Parse()
	if *configPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: generate_fixture --config <path> --out <duckdb file>")
		os.Exit(2)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir output dir: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := generateFixture(ctx, *outPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "generate fixture: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (fixtureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fixtureConfig{}, err
	}
	var cfg fixtureConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fixtureConfig{}, err
	}
	if cfg.Name == "" || cfg.Samples <= 0 || len(cfg.Variants) < 2 {
		return fixtureConfig{}, fmt.Errorf("name, samples and at least two variants are required")
	}
	return cfg, nil
}

// generateFixture stores one completed test whose samples alternate a small
// amount around each variant's base cost and latency.
func generateFixture(ctx context.Context, path string, cfg fixtureConfig) error {
	db, err := duckdb.Open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	startTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	test := abtest.ABTest{
		ID:     cfg.Name,
		Name:   "fixture " + cfg.Name,
		Inputs: []abtest.TestInput{{ID: cfg.Name + "-input", Prompt: "fixture"}},
		Config: abtest.Configuration{
			MinSampleSize: cfg.Samples * len(cfg.Variants),
		}.WithDefaults(len(cfg.Variants)),
		Status:    abtest.StatusDraft,
		CreatedAt: startTime,
	}
	for _, variant := range cfg.Variants {
		test.Variants = append(test.Variants, abtest.PromptVariant{
			ID: variant.ID, Name: variant.ID, Template: "{{input}}", Provider: "openai", Model: variant.Model,
		})
	}
	if err := store.Seed(ctx, db, test); err != nil {
		return err
	}
	if _, err := db.UpdateTestStatus(ctx, test.ID, abtest.StatusRunning, startTime); err != nil {
		return err
	}

	sessionID := deterministicID("session", 0)
	for i := 0; i < cfg.Samples; i++ {
		swing := 0.02
		if i%2 == 1 {
			swing = -swing
		}
		for v, variant := range cfg.Variants {
			cost := variant.Cost * (1 + swing)
			result := abtest.TestResult{
				ID:          deterministicID("result", i*len(cfg.Variants)+v),
				VariantID:   variant.ID,
				InputID:     test.Inputs[0].ID,
				SampleIndex: i,
				Model:       variant.Model,
				Response:    "fixture response",
				Usage:       abtest.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
				Cost:        pricing.CostBreakdown{PromptCost: cost / 2, CompletionCost: cost / 2, TotalCost: cost},
				Latency:     time.Duration(float64(variant.LatencyMs)*(1+swing)) * time.Millisecond,
				Timestamp:   startTime.Add(time.Duration(i) * time.Second),
				SessionID:   sessionID,
				TraceID:     deterministicID("trace", i*len(cfg.Variants)+v),
			}
			if err := db.AppendResult(ctx, test.ID, result); err != nil {
				return err
			}
		}
	}
	_, err = db.UpdateTestStatus(ctx, test.ID, abtest.StatusCompleted, startTime.Add(time.Duration(cfg.Samples)*time.Second))
	return err
}

func deterministicID(prefix string, index int) string {
	return uuid.NewSHA1(fixtureNamespace, []byte(fmt.Sprintf("%s-%d", prefix, index))).String()
}

var fixtureNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
