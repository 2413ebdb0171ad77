package orchestrator

import (
	"context"
	"time"

	"github.com/thomascherickal/agentflow/internal/flow"
)

// RetryPolicy retries whole-flow runs that failed with a retryable error
// kind. Each attempt runs against a fresh flow built by the factory, so
// partial state from a failed attempt never leaks into the next.
type RetryPolicy struct {
	// MaxAttempts is the total number of runs, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int
	// Retryable lists the error kinds worth retrying. Empty means
	// transport and convergence failures.
	Retryable []flow.Kind
	// Backoff is the pause between attempts. Zero means none.
	Backoff time.Duration
	// DebugLog is an optional logging function.
	DebugLog func(format string, args ...any)
}

func (p RetryPolicy) retryable(err error) bool {
	kinds := p.Retryable
	if len(kinds) == 0 {
		kinds = []flow.Kind{flow.KindTransport, flow.KindConvergence}
	}
	for _, k := range kinds {
		if flow.IsKind(err, k) {
			return true
		}
	}
	return false
}

// Run executes the flow built by factory, retrying per the policy. The
// factory returns a fresh engine for each attempt; errors from it are
// not retried.
func (p RetryPolicy) Run(ctx context.Context, factory func() (*Engine, error)) (FlowResult, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	debugLog := p.DebugLog
	if debugLog == nil {
		debugLog = func(format string, args ...any) {}
	}

	var res FlowResult
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var eng *Engine
		eng, err = factory()
		if err != nil {
			return FlowResult{}, err
		}
		res, err = eng.Run(ctx)
		if err == nil || !p.retryable(err) || attempt == attempts {
			return res, err
		}
		debugLog("[retry] attempt %d/%d failed: %v", attempt, attempts, err)
		if p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return res, flow.NewError(flow.KindCancellation, ctx.Err())
			case <-time.After(p.Backoff):
			}
		}
	}
	return res, err
}
