package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/provider"
)

// ScriptedGenerator answers generation calls from a script function and
// tracks concurrency.
type ScriptedGenerator struct {
	// Respond builds the result for the nth call (0-based, in arrival order).
	Respond func(call int, req provider.Request) (provider.Result, error)
	// Delay is applied to every call and honors context cancellation.
	Delay time.Duration
	// Gate, when set, blocks every call until it is closed.
	Gate chan struct{}

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64

	mu       sync.Mutex
	requests []provider.Request
}

// Generate implements provider.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req provider.Request) (provider.Result, error) {
	call := int(g.calls.Add(1) - 1)
	current := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if current <= seen || g.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.Gate != nil {
		select {
		case <-g.Gate:
		case <-ctx.Done():
			return provider.Result{}, ctx.Err()
		}
	}
	if g.Delay > 0 {
		timer := time.NewTimer(g.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return provider.Result{}, ctx.Err()
		}
	}
	if g.Respond == nil {
		return FixedResult(10, 5), nil
	}
	return g.Respond(call, req)
}

// Calls returns how many calls arrived.
func (g *ScriptedGenerator) Calls() int {
	return int(g.calls.Load())
}

// MaxInFlight returns the highest observed number of concurrent calls.
func (g *ScriptedGenerator) MaxInFlight() int {
	return int(g.maxSeen.Load())
}

// Requests returns the received requests in arrival order.
func (g *ScriptedGenerator) Requests() []provider.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.Request(nil), g.requests...)
}

// FixedResult returns a result with the given token usage.
func FixedResult(promptTokens, completionTokens int) provider.Result {
	return provider.Result{
		Text: "ok",
		Usage: abtest.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		ProviderRequestID: "req",
	}
}
