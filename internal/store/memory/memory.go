package memory

import (
	"context"
	"sync"
	"time"

	"promptab/internal/abtest"
)

// Store keeps everything in process memory.
type Store struct {
	mu       sync.RWMutex
	variants map[string]abtest.PromptVariant
	inputs   map[string]abtest.TestInput
	tests    map[string]*abtest.ABTest
}

// New returns an empty store.
func New() *Store {
	return &Store{
		variants: map[string]abtest.PromptVariant{},
		inputs:   map[string]abtest.TestInput{},
		tests:    map[string]*abtest.ABTest{},
	}
}

func (s *Store) GetVariant(_ context.Context, id string) (abtest.PromptVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variant, ok := s.variants[id]
	if !ok {
		return abtest.PromptVariant{}, &abtest.NotFoundError{Kind: "variant", ID: id}
	}
	return copyVariant(variant), nil
}

func (s *Store) GetInput(_ context.Context, id string) (abtest.TestInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	input, ok := s.inputs[id]
	if !ok {
		return abtest.TestInput{}, &abtest.NotFoundError{Kind: "input", ID: id}
	}
	return copyInput(input), nil
}

func (s *Store) GetTest(_ context.Context, id string) (abtest.ABTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	test, ok := s.tests[id]
	if !ok {
		return abtest.ABTest{}, &abtest.NotFoundError{Kind: "test", ID: id}
	}
	return copyTest(*test), nil
}

func (s *Store) PutVariant(_ context.Context, variant abtest.PromptVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[variant.ID] = copyVariant(variant)
	return nil
}

func (s *Store) PutInput(_ context.Context, input abtest.TestInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[input.ID] = copyInput(input)
	return nil
}

// PutTest stores a test definition. A test that has left draft keeps its
// status and samples.
func (s *Store) PutTest(_ context.Context, test abtest.ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tests[test.ID]; ok && existing.Status != abtest.StatusDraft {
		return &abtest.InvalidStateError{TestID: test.ID, Status: existing.Status, Op: "redefine"}
	}
	if test.Status == "" {
		test.Status = abtest.StatusDraft
	}
	copied := copyTest(test)
	s.tests[test.ID] = &copied
	return nil
}

func (s *Store) AppendResult(_ context.Context, testID string, result abtest.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.tests[testID]
	if !ok {
		return &abtest.NotFoundError{Kind: "test", ID: testID}
	}
	test.Results = append(test.Results, result)
	return nil
}

func (s *Store) AppendError(_ context.Context, testID string, sampleErr abtest.SampleError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.tests[testID]
	if !ok {
		return &abtest.NotFoundError{Kind: "test", ID: testID}
	}
	test.Errors = append(test.Errors, sampleErr)
	return nil
}

func (s *Store) UpdateTestStatus(_ context.Context, testID string, status abtest.Status, at time.Time) (abtest.ABTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	test, ok := s.tests[testID]
	if !ok {
		return abtest.ABTest{}, &abtest.NotFoundError{Kind: "test", ID: testID}
	}
	if err := abtest.Transition(testID, test.Status, status, "move to "+string(status)); err != nil {
		return abtest.ABTest{}, err
	}
	test.Status = status
	if status == abtest.StatusRunning {
		test.StartedAt = at
	}
	if status.Terminal() {
		test.FinishedAt = at
	}
	return copyTest(*test), nil
}

func (s *Store) ListResults(_ context.Context, testID string) ([]abtest.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	test, ok := s.tests[testID]
	if !ok {
		return nil, &abtest.NotFoundError{Kind: "test", ID: testID}
	}
	return append([]abtest.TestResult(nil), test.Results...), nil
}

func copyVariant(variant abtest.PromptVariant) abtest.PromptVariant {
	variant.Variables = append([]abtest.VariableDecl(nil), variant.Variables...)
	variant.Tags = append([]string(nil), variant.Tags...)
	return variant
}

func copyInput(input abtest.TestInput) abtest.TestInput {
	if input.Variables != nil {
		vars := make(map[string]string, len(input.Variables))
		for key, value := range input.Variables {
			vars[key] = value
		}
		input.Variables = vars
	}
	return input
}

func copyTest(test abtest.ABTest) abtest.ABTest {
	variants := make([]abtest.PromptVariant, len(test.Variants))
	for i, variant := range test.Variants {
		variants[i] = copyVariant(variant)
	}
	test.Variants = variants
	inputs := make([]abtest.TestInput, len(test.Inputs))
	for i, input := range test.Inputs {
		inputs[i] = copyInput(input)
	}
	test.Inputs = inputs
	test.Config.TrafficSplit = append([]float64(nil), test.Config.TrafficSplit...)
	test.Results = append([]abtest.TestResult(nil), test.Results...)
	test.Errors = append([]abtest.SampleError(nil), test.Errors...)
	return test
}
