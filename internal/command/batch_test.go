package command

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// countingRunner fails specific device ids and counts concurrency.
type countingRunner struct {
	mu       sync.Mutex
	failIDs  map[string]error
	inflight int32
	peak     int32
	delay    time.Duration
}

func (r *countingRunner) ExecuteCommand(ctx context.Context, id string, _ platform.Command) (device.State, error) {
	cur := atomic.AddInt32(&r.inflight, 1)
	defer atomic.AddInt32(&r.inflight, -1)
	for {
		p := atomic.LoadInt32(&r.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&r.peak, p, cur) {
			break
		}
	}

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	err := r.failIDs[id]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return device.State{"done": true}, nil
}

func batchOf(ids ...string) []platform.CommandRequest {
	reqs := make([]platform.CommandRequest, len(ids))
	for i, id := range ids {
		reqs[i] = platform.CommandRequest{DeviceID: id, Command: onCommand()}
	}
	return reqs
}

func TestBatchSequentialOrder(t *testing.T) {
	ex := NewExecutor(&countingRunner{}, fastConfig())

	results := ex.ExecuteBatch(context.Background(), batchOf("hue:1", "hue:2", "hue:3"), BatchConfig{
		ContinueOnError: true,
	})

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, id := range []string{"hue:1", "hue:2", "hue:3"} {
		if results[i].DeviceID != id || !results[i].Success {
			t.Errorf("result[%d] = %+v", i, results[i])
		}
	}
}

func TestBatchSequentialContinueOnError(t *testing.T) {
	runner := &countingRunner{failIDs: map[string]error{
		"hue:2": platform.NewError(platform.CodeInvalidCommand, "bad verb"),
	}}
	ex := NewExecutor(runner, fastConfig())

	results := ex.ExecuteBatch(context.Background(), batchOf("hue:1", "hue:2", "hue:3"), BatchConfig{
		ContinueOnError: true,
	})

	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("outcomes = %v/%v/%v, want ok/fail/ok",
			results[0].Success, results[1].Success, results[2].Success)
	}
}

func TestBatchSequentialStopOnError(t *testing.T) {
	runner := &countingRunner{failIDs: map[string]error{
		"hue:2": platform.NewError(platform.CodeInvalidCommand, "bad verb"),
	}}
	ex := NewExecutor(runner, fastConfig())

	results := ex.ExecuteBatch(context.Background(), batchOf("hue:1", "hue:2", "hue:3"), BatchConfig{
		ContinueOnError: false,
	})

	if !results[0].Success || results[1].Success {
		t.Fatalf("outcomes = %v/%v", results[0].Success, results[1].Success)
	}
	if results[2].Success || results[2].Fault == nil {
		t.Error("remainder should be skipped with a fault")
	}
	if platform.CodeOf(results[2].Fault) != platform.CodeCommandExecution {
		t.Errorf("skip fault = %v", results[2].Fault)
	}
}

func TestBatchSequentialDispatchBudget(t *testing.T) {
	runner := &countingRunner{delay: 30 * time.Millisecond}
	ex := NewExecutor(runner, fastConfig())

	results := ex.ExecuteBatch(context.Background(), batchOf("hue:1", "hue:2", "hue:3"), BatchConfig{
		DispatchBudget:  10 * time.Millisecond,
		ContinueOnError: true,
	})

	// The first command dispatches before the budget is consumed and
	// runs to completion; later ones are skipped.
	if !results[0].Success {
		t.Errorf("result[0] = %+v", results[0])
	}
	skipped := 0
	for _, res := range results[1:] {
		if !res.Success && res.Fault != nil {
			skipped++
		}
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestBatchParallelWindow(t *testing.T) {
	runner := &countingRunner{delay: 20 * time.Millisecond}
	ex := NewExecutor(runner, fastConfig())

	results := ex.ExecuteBatch(context.Background(),
		batchOf("hue:1", "hue:2", "hue:3", "hue:4", "hue:5", "hue:6"),
		BatchConfig{Parallel: true, Parallelism: 2},
	)

	for i, res := range results {
		if !res.Success {
			t.Errorf("result[%d] failed: %v", i, res.Fault)
		}
	}
	if peak := atomic.LoadInt32(&runner.peak); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestBatchParallelUnbounded(t *testing.T) {
	runner := &countingRunner{delay: 30 * time.Millisecond}
	ex := NewExecutor(runner, fastConfig())

	results := ex.ExecuteBatch(context.Background(),
		batchOf("hue:1", "hue:2", "hue:3", "hue:4", "hue:5", "hue:6"),
		BatchConfig{Parallel: true}, // no window: everything starts at once
	)

	for i, res := range results {
		if !res.Success {
			t.Errorf("result[%d] failed: %v", i, res.Fault)
		}
	}
	if peak := atomic.LoadInt32(&runner.peak); peak != 6 {
		t.Errorf("peak concurrency = %d, want 6 with no window", peak)
	}
}

func TestBatchParallelMixedOutcomes(t *testing.T) {
	runner := &countingRunner{failIDs: map[string]error{
		"tuya:bad": platform.NewError(platform.CodeDeviceNotFound, "gone"),
	}}
	ex := NewExecutor(runner, fastConfig())

	results := ex.ExecuteBatch(context.Background(), batchOf("hue:1", "tuya:bad", "hue:3"),
		BatchConfig{Parallel: true})

	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("outcomes = %v/%v/%v", results[0].Success, results[1].Success, results[2].Success)
	}
	if results[1].DeviceID != "tuya:bad" {
		t.Error("results must stay in input order under parallel dispatch")
	}
}

func TestBatchEmpty(t *testing.T) {
	ex := NewExecutor(&countingRunner{}, fastConfig())
	if results := ex.ExecuteBatch(context.Background(), nil, DefaultBatchConfig()); len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}
