package command

import (
	"context"
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/platform"
)

// BatchConfig tunes batch dispatch behaviour.
type BatchConfig struct {
	// Parallel fans commands out concurrently instead of dispatching
	// them one after another.
	Parallel bool

	// Parallelism bounds the in-flight window of a parallel batch.
	// Values below 1 mean unbounded (every command starts at once).
	Parallelism int

	// DispatchBudget bounds the wall-clock time a sequential batch may
	// spend starting new commands. Zero means no budget. Commands
	// already in flight always run to completion.
	DispatchBudget time.Duration

	// ContinueOnError keeps a sequential batch going after a failed
	// command instead of skipping the remainder.
	ContinueOnError bool
}

// DefaultBatchConfig returns the stock batch policy: sequential,
// no dispatch budget, keep going on failures.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ContinueOnError: true,
	}
}

// ExecuteBatch runs a batch of commands through the executor's retry
// machinery, one result per request in input order.
//
// Parallel batches fan every command out at once, or through a bounded
// window when Parallelism is set; sequential batches dispatch in order
// under the optional dispatch budget. A batch never returns an error of
// its own: per-command outcomes are in the results.
func (e *Executor) ExecuteBatch(ctx context.Context, reqs []platform.CommandRequest, cfg BatchConfig) []Result {
	if cfg.Parallel {
		window := cfg.Parallelism
		if window < 1 {
			window = len(reqs)
		}
		return e.batchParallel(ctx, reqs, window)
	}
	return e.batchSequential(ctx, reqs, cfg)
}

func (e *Executor) batchSequential(ctx context.Context, reqs []platform.CommandRequest, cfg BatchConfig) []Result {
	results := make([]Result, len(reqs))
	start := time.Now()

	for i, req := range reqs {
		if skip := e.skipReason(ctx, cfg, start); skip != nil {
			results[i] = skippedResult(req, skip)
			continue
		}

		results[i] = e.Execute(ctx, req.DeviceID, req.Command)

		if !results[i].Success && !cfg.ContinueOnError {
			for j := i + 1; j < len(reqs); j++ {
				results[j] = skippedResult(reqs[j],
					platform.NewError(platform.CodeCommandExecution, "skipped after earlier batch failure"))
			}
			break
		}
	}
	return results
}

func (e *Executor) batchParallel(ctx context.Context, reqs []platform.CommandRequest, window int) []Result {
	if len(reqs) == 0 {
		return nil
	}
	results := make([]Result, len(reqs))
	sem := make(chan struct{}, window)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req platform.CommandRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[i] = skippedResult(req,
					platform.NewError(platform.CodeCommandExecution, "batch cancelled").WithCause(ctx.Err()))
				return
			}
			results[i] = e.Execute(ctx, req.DeviceID, req.Command)
		}(i, req)
	}

	wg.Wait()
	return results
}

// skipReason decides whether a sequential batch may start another
// command, returning the fault to record when it may not.
func (e *Executor) skipReason(ctx context.Context, cfg BatchConfig, start time.Time) *platform.Error {
	if err := ctx.Err(); err != nil {
		return platform.NewError(platform.CodeCommandExecution, "batch cancelled").WithCause(err)
	}
	if cfg.DispatchBudget > 0 && time.Since(start) > cfg.DispatchBudget {
		return platform.Errorf(platform.CodeCommandExecution,
			"batch dispatch budget of %s exhausted", cfg.DispatchBudget)
	}
	return nil
}

func skippedResult(req platform.CommandRequest, fault *platform.Error) Result {
	if fault.Context.DeviceID == "" {
		fault.Context.DeviceID = req.DeviceID
	}
	return Result{
		DeviceID:  req.DeviceID,
		Command:   req.Command.Command,
		Timestamp: time.Now().UTC(),
		Fault:     fault,
	}
}
