package store

import (
	"context"
	"time"

	"promptab/internal/abtest"
)

// Store persists variants, inputs, tests and their samples. Unknown ids
// return errors matching abtest.ErrNotFound. Implementations must be safe for
// concurrent use.
type Store interface {
	GetVariant(ctx context.Context, id string) (abtest.PromptVariant, error)
	GetInput(ctx context.Context, id string) (abtest.TestInput, error)
	GetTest(ctx context.Context, id string) (abtest.ABTest, error)
	PutVariant(ctx context.Context, variant abtest.PromptVariant) error
	PutInput(ctx context.Context, input abtest.TestInput) error
	PutTest(ctx context.Context, test abtest.ABTest) error
	AppendResult(ctx context.Context, testID string, result abtest.TestResult) error
	AppendError(ctx context.Context, testID string, sampleErr abtest.SampleError) error
	// UpdateTestStatus rejects transitions the state machine does not allow.
	// Moving to running sets StartedAt; a terminal status sets FinishedAt.
	UpdateTestStatus(ctx context.Context, testID string, status abtest.Status, at time.Time) (abtest.ABTest, error)
	ListResults(ctx context.Context, testID string) ([]abtest.TestResult, error)
}

// Seed writes the variants, inputs and test definition of test.
func Seed(ctx context.Context, s Store, test abtest.ABTest) error {
	for _, variant := range test.Variants {
		if err := s.PutVariant(ctx, variant); err != nil {
			return err
		}
	}
	for _, input := range test.Inputs {
		if err := s.PutInput(ctx, input); err != nil {
			return err
		}
	}
	return s.PutTest(ctx, test)
}
