package runner

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"promptab/internal/abtest"
	"promptab/internal/tracing"
)

// CompareSide is one variant's outcome in a side-by-side comparison. Exactly
// one of Result and Err is set.
type CompareSide struct {
	VariantID string             `json:"variant_id"`
	Result    *abtest.TestResult `json:"result,omitempty"`
	Err       error              `json:"-"`
	Error     string             `json:"error,omitempty"`
}

// CompareResult is the outcome of CompareSingle.
type CompareResult struct {
	InputID   string      `json:"input_id"`
	SessionID string      `json:"session_id"`
	A         CompareSide `json:"a"`
	B         CompareSide `json:"b"`
	// CostDelta and LatencyDeltaMs are A minus B, set only when both sides succeeded.
	CostDelta      float64 `json:"cost_delta"`
	LatencyDeltaMs float64 `json:"latency_delta_ms"`
}

// Both reports whether both sides produced a result.
func (c CompareResult) Both() bool {
	return c.A.Result != nil && c.B.Result != nil
}

// CompareSingle runs one sample of each variant against the same input
// concurrently. It touches no test state. A failing side is reported in its
// CompareSide; the returned error covers only unknown ids.
func (o *Orchestrator) CompareSingle(ctx context.Context, variantAID, variantBID, inputID string) (CompareResult, error) {
	variantA, err := o.store.GetVariant(ctx, variantAID)
	if err != nil {
		return CompareResult{}, err
	}
	variantB, err := o.store.GetVariant(ctx, variantBID)
	if err != nil {
		return CompareResult{}, err
	}
	input, err := o.store.GetInput(ctx, inputID)
	if err != nil {
		return CompareResult{}, err
	}

	out := CompareResult{
		InputID:   inputID,
		SessionID: uuid.NewString(),
		A:         CompareSide{VariantID: variantAID},
		B:         CompareSide{VariantID: variantBID},
	}
	var group errgroup.Group
	for _, side := range []struct {
		variant abtest.PromptVariant
		target  *CompareSide
	}{{variantA, &out.A}, {variantB, &out.B}} {
		side := side
		group.Go(func() error {
			result, err := o.runner.Run(ctx, Sample{
				Variant:   side.variant,
				Input:     input,
				SessionID: out.SessionID,
				Context:   tracing.ContextCompareSingle,
			})
			if err != nil {
				side.target.Err = err
				side.target.Error = err.Error()
				return nil
			}
			side.target.Result = &result
			return nil
		})
	}
	_ = group.Wait()

	if out.Both() {
		out.CostDelta = out.A.Result.Cost.TotalCost - out.B.Result.Cost.TotalCost
		out.LatencyDeltaMs = out.A.Result.MetricValue(abtest.MetricLatency) - out.B.Result.MetricValue(abtest.MetricLatency)
	}
	return out, nil
}
