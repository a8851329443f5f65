//go:build cucumber

package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"promptab/internal/abtest"
	"promptab/internal/pricing"
	"promptab/internal/provider"
	"promptab/internal/store"
	"promptab/internal/store/memory"
	"promptab/internal/testutil"
)

// TestWinnerScenarios runs the A/B test winner feature scenarios.
func TestWinnerScenarios(t *testing.T) {
	featurePath := filepath.Join("..", "..", "spec", "features", "ab-test-winner.feature")
	suite := godog.TestSuite{
		Name:                "ab-test-winner",
		ScenarioInitializer: InitializeWinnerScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{featurePath},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeWinnerScenario wires steps for the winner feature.
func InitializeWinnerScenario(ctx *godog.ScenarioContext) {
	state := &winnerScenarioState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^variant "([^"]+)" costs ([0-9.]+) dollars per sample$`, state.givenVariantCost)
	ctx.Step(`^each variant runs (\d+) samples$`, state.givenSamplesPerVariant)
	ctx.Step(`^sample (\d+) of variant "([^"]+)" fails$`, state.givenSampleFails)
	ctx.Step(`^every sample fails$`, state.givenEverySampleFails)
	ctx.Step(`^the test runs to completion$`, state.whenTheTestRuns)
	ctx.Step(`^the test status is "([^"]+)"$`, state.thenTestStatus)
	ctx.Step(`^the winner is "([^"]+)"$`, state.thenWinnerIs)
	ctx.Step(`^there is no winner$`, state.thenNoWinner)
	ctx.Step(`^the analysis status is "([^"]+)"$`, state.thenAnalysisStatus)
	ctx.Step(`^the estimated savings are about ([0-9.]+)$`, state.thenSavingsAbout)
	ctx.Step(`^variant "([^"]+)" has (\d+) results$`, state.thenVariantResults)
}

// promptTokensPerSample is the base token count a scripted call reports.
const promptTokensPerSample = 100

// winnerScenarioState holds scenario state for winner feature tests.
type winnerScenarioState struct {
	variants   []string
	prices     *pricing.Table
	perVariant int
	failAt     map[string]int
	failAll    bool

	mu    sync.Mutex
	calls map[string]int

	results Results
}

// reset clears scenario state.
func (s *winnerScenarioState) reset() {
	s.variants = nil
	s.prices = pricing.NewTable(nil)
	s.perVariant = 0
	s.failAt = map[string]int{}
	s.failAll = false
	s.calls = map[string]int{}
	s.results = Results{}
}

// givenVariantCost prices the variant's model so a scripted call costs cost.
func (s *winnerScenarioState) givenVariantCost(id string, cost float64) error {
	s.variants = append(s.variants, id)
	s.prices.Set(modelFor(id), pricing.Price{InputPer1K: cost * 1000 / promptTokensPerSample})
	return nil
}

func (s *winnerScenarioState) givenSamplesPerVariant(n int) error {
	s.perVariant = n
	return nil
}

func (s *winnerScenarioState) givenSampleFails(index int, id string) error {
	s.failAt[modelFor(id)] = index
	return nil
}

func (s *winnerScenarioState) givenEverySampleFails() error {
	s.failAll = true
	return nil
}

// whenTheTestRuns seeds a draft test and runs it with one worker so calls
// arrive in plan order.
func (s *winnerScenarioState) whenTheTestRuns() error {
	if len(s.variants) < 2 || s.perVariant == 0 {
		return fmt.Errorf("scenario needs two priced variants and a sample count")
	}
	test := abtest.ABTest{
		ID:     "winner-scenario",
		Name:   "winner scenario",
		Inputs: []abtest.TestInput{{ID: "q", Prompt: "hello"}},
		Config: abtest.Configuration{
			MinSampleSize:   s.perVariant * len(s.variants),
			ConfidenceLevel: 0.95,
			PrimaryMetric:   abtest.MetricCost,
		},
		Status: abtest.StatusDraft,
	}
	for _, id := range s.variants {
		test.Variants = append(test.Variants, abtest.PromptVariant{
			ID: id, Name: id, Template: "{{input}}", Provider: provider.OpenAIName, Model: modelFor(id),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st := memory.New()
	if err := store.Seed(ctx, st, test); err != nil {
		return err
	}
	orch, err := New(Options{
		Store:   st,
		Runner:  NewSampleRunner(&testutil.ScriptedGenerator{Respond: s.respond}, s.prices),
		Workers: 1,
	})
	if err != nil {
		return err
	}
	defer func() { _ = orch.Close(ctx) }()
	if _, err := orch.Start(ctx, test.ID); err != nil {
		return err
	}
	if _, err := orch.Wait(ctx, test.ID); err != nil {
		return err
	}
	s.results, err = orch.GetResults(ctx, test.ID)
	return err
}

// respond reports one token of jitter either side of the base count so each
// variant has a small non-zero variance.
func (s *winnerScenarioState) respond(_ int, req provider.Request) (provider.Result, error) {
	s.mu.Lock()
	index := s.calls[req.Model]
	s.calls[req.Model]++
	s.mu.Unlock()

	if s.failAll {
		return provider.Result{}, provider.Wrap(provider.OpenAIName, errors.New("upstream unavailable"))
	}
	if at, ok := s.failAt[req.Model]; ok && at == index {
		return provider.Result{}, provider.Wrap(provider.OpenAIName, errors.New("bad gateway"))
	}
	tokens := promptTokensPerSample + 1
	if index%2 == 1 {
		tokens = promptTokensPerSample - 1
	}
	return testutil.FixedResult(tokens, 0), nil
}

func (s *winnerScenarioState) thenTestStatus(expected string) error {
	if got := string(s.results.Test.Status); got != expected {
		return fmt.Errorf("expected test status %q, got %q", expected, got)
	}
	return nil
}

func (s *winnerScenarioState) thenWinnerIs(expected string) error {
	winner := s.results.Analysis.Winner
	if winner == nil {
		return fmt.Errorf("expected winner %q, got none", expected)
	}
	if winner.VariantID != expected {
		return fmt.Errorf("expected winner %q, got %q", expected, winner.VariantID)
	}
	return nil
}

func (s *winnerScenarioState) thenNoWinner() error {
	if winner := s.results.Analysis.Winner; winner != nil {
		return fmt.Errorf("expected no winner, got %q", winner.VariantID)
	}
	return nil
}

func (s *winnerScenarioState) thenAnalysisStatus(expected string) error {
	if got := string(s.results.Analysis.Status); got != expected {
		return fmt.Errorf("expected analysis status %q, got %q", expected, got)
	}
	return nil
}

func (s *winnerScenarioState) thenSavingsAbout(expected float64) error {
	got := s.results.Analysis.Insights.EstimatedSavings
	if math.Abs(got-expected) > expected*0.05 {
		return fmt.Errorf("expected savings near %g, got %g", expected, got)
	}
	return nil
}

func (s *winnerScenarioState) thenVariantResults(id string, expected int) error {
	if got := len(abtest.ResultsForVariant(s.results.Test.Results, id)); got != expected {
		return fmt.Errorf("expected %d results for %s, got %d", expected, id, got)
	}
	return nil
}

func modelFor(variantID string) string {
	return "model-" + variantID
}
