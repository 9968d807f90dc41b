package command

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// Logger defines the logging interface used by the Executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner is the dispatch surface the executor drives. The platform
// registry satisfies it.
type Runner interface {
	ExecuteCommand(ctx context.Context, deviceID string, cmd platform.Command) (device.State, error)
}

// Recorder receives a copy of every settled result, successful or not.
// Implementations must be fast and non-blocking; the telemetry writer
// satisfies it.
type Recorder interface {
	RecordCommand(res Result)
}

// Config tunes retry and timeout behaviour.
type Config struct {
	// Retries is the number of attempts after the first. 3 means up to
	// 4 tries total.
	Retries int

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// BackoffBase is the delay before the first retry. Subsequent
	// retries double it, capped at 16x.
	BackoffBase time.Duration

	// Jitter is the symmetric random fraction applied to each backoff
	// delay (0.2 means ±20%).
	Jitter float64
}

// DefaultConfig returns the stock retry policy.
func DefaultConfig() Config {
	return Config{
		Retries:     3,
		Timeout:     10 * time.Second,
		BackoffBase: time.Second,
		Jitter:      0.2,
	}
}

// normalize fills zero fields with defaults and clamps nonsense values.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = d.Jitter
	}
	return c
}

// Result is the settled outcome of one command execution, carrying
// everything an audit trail or telemetry sink needs.
type Result struct {
	Success       bool          `json:"success"`
	DeviceID      string        `json:"device_id"`
	Command       string        `json:"command"`
	State         device.State  `json:"state,omitempty"`
	CorrelationID string        `json:"correlation_id"`
	Retries       int           `json:"retries"`
	Duration      time.Duration `json:"duration"`
	Timestamp     time.Time     `json:"timestamp"`

	// Fault is the final error for failed executions, nil on success.
	Fault error `json:"-"`
}

// Executor wraps a Runner with per-attempt timeouts, classified retries,
// and exponential backoff. It is stateless apart from metrics and safe
// for concurrent use.
type Executor struct {
	runner   Runner
	cfg      Config
	logger   Logger
	metrics  *Metrics
	recorder Recorder
}

// NewExecutor creates an executor over the given runner.
func NewExecutor(runner Runner, cfg Config) *Executor {
	return &Executor{
		runner:  runner,
		cfg:     cfg.normalize(),
		logger:  noopLogger{},
		metrics: newMetrics(),
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetRecorder attaches a sink for settled results.
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// Metrics returns a snapshot of execution counters and latency quantiles.
func (e *Executor) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// ResetMetrics zeroes the counters and the latency window.
func (e *Executor) ResetMetrics() {
	e.metrics.Reset()
}

// Execute runs one command against its device, retrying transient faults
// with exponential backoff until success, a permanent fault, an exhausted
// budget, or context cancellation.
//
// Every execution is stamped with a correlation id that survives into the
// final fault's context, so one user action can be traced across attempts
// and log lines.
func (e *Executor) Execute(ctx context.Context, deviceID string, cmd platform.Command) Result {
	return e.ExecuteCorrelated(ctx, deviceID, cmd, "")
}

// ExecuteCorrelated is Execute under a caller-supplied correlation id,
// for frontends that thread their own request ids through the stack.
// An empty id gets a fresh one.
func (e *Executor) ExecuteCorrelated(ctx context.Context, deviceID string, cmd platform.Command, corrID string) Result {
	start := time.Now()
	if corrID == "" {
		corrID = uuid.NewString()
	}

	res := Result{
		DeviceID:      deviceID,
		Command:       cmd.Command,
		CorrelationID: corrID,
		Timestamp:     start.UTC(),
	}

	attempts := e.cfg.Retries + 1
	tried := 0
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		tried = attempt
		state, err := e.attempt(ctx, deviceID, cmd)
		if err == nil {
			res.Success = true
			res.State = state
			res.Retries = attempt - 1
			res.Duration = time.Since(start)
			e.settle(res)
			return res
		}
		lastErr = err

		if ctx.Err() != nil {
			// The caller gave up; stop retrying on their behalf.
			break
		}
		if !platform.IsRetryable(err) {
			e.logger.Debug("command fault is not retryable",
				"device_id", deviceID, "command", cmd.Command,
				"correlation_id", corrID, "error", err)
			break
		}
		if attempt == attempts {
			break
		}

		delay := e.backoff(attempt, err)
		e.logger.Debug("retrying command",
			"device_id", deviceID, "command", cmd.Command,
			"correlation_id", corrID, "attempt", attempt,
			"delay", delay, "error", err)

		if !sleep(ctx, delay) {
			break
		}
	}

	res.Retries = tried - 1
	res.Duration = time.Since(start)
	res.Fault = platform.WrapExhausted(lastErr, tried, corrID)
	if f, ok := platform.AsError(res.Fault); ok && f.Context.DeviceID == "" {
		f.Context.DeviceID = deviceID
	}

	e.logger.Warn("command failed",
		"device_id", deviceID, "command", cmd.Command,
		"correlation_id", corrID, "error", res.Fault)
	e.settle(res)
	return res
}

// attempt runs one try under the per-attempt timeout, translating a
// deadline overrun into a transient timeout fault.
func (e *Executor) attempt(ctx context.Context, deviceID string, cmd platform.Command) (device.State, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	state, err := e.runner.ExecuteCommand(attemptCtx, deviceID, cmd)
	if err == nil {
		return state, nil
	}

	// Only convert to a timeout fault when the parent is still alive:
	// the attempt timed out, not the caller.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, platform.Errorf(platform.CodeTimeout,
			"command timed out after %s", e.cfg.Timeout).WithCause(err).
			WithDevice(deviceID, "").WithCommand(cmd.Command)
	}
	return nil, err
}

// backoff computes the delay before the retry following attempt n.
// A server-provided retry-after hint overrides the computed schedule.
func (e *Executor) backoff(attempt int, err error) time.Duration {
	if hint, ok := platform.RetryAfterOf(err); ok {
		return hint
	}

	delay := e.cfg.BackoffBase << (attempt - 1)
	if ceiling := 16 * e.cfg.BackoffBase; delay > ceiling {
		delay = ceiling
	}
	if e.cfg.Jitter > 0 {
		spread := float64(delay) * e.cfg.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// settle records the result with metrics and the optional recorder.
func (e *Executor) settle(res Result) {
	e.metrics.observe(res)
	if e.recorder != nil {
		e.recorder.RecordCommand(res)
	}
}

// sleep waits for d or until ctx is done. Returns false when interrupted.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
