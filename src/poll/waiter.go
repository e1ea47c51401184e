// Package poll waits for a build result to reach one of a set of states.
package poll

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"buildctl-agent/src/logger"
	"buildctl-agent/src/metrics"
	"buildctl-agent/src/provider"
)

// WaitForever is the timeout value that disables the time budget.
const WaitForever = -1

// MaxSeconds is the longest timeout or interval a time.Duration can hold.
const MaxSeconds = math.MaxInt64 / int64(time.Second)

// Request describes one wait.
type Request struct {
	BuildResultRef  string
	States          []string
	TimeoutSeconds  int
	IntervalSeconds int
}

// Result is the last observed state of the build result.
// TimedOut is set when the budget ran out before a state matched.
type Result struct {
	State    provider.BuildState
	Status   provider.BuildStatus
	TimedOut bool
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithTimeUnit sets the length of one interval second. Tests shrink it to
// keep real waits short.
func WithTimeUnit(d time.Duration) Option {
	return func(w *Waiter) {
		w.unit = d
	}
}

// WithMetrics records sleeps and outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Waiter) {
		w.metrics = m
	}
}

// Waiter polls a BuildService. It holds no per-call state and may be shared.
type Waiter struct {
	svc     provider.BuildService
	log     logger.Logger
	unit    time.Duration
	metrics *metrics.Metrics
}

// NewWaiter creates a Waiter backed by svc.
func NewWaiter(svc provider.BuildService, log logger.Logger, opts ...Option) *Waiter {
	w := &Waiter{
		svc:  svc,
		log:  log,
		unit: time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait queries the build result until its state is one of req.States.
//
// With a finite budget the loop sleeps exactly IntervalSeconds per round,
// so an unmatched wait sleeps ChunkCount(TimeoutSeconds, IntervalSeconds)
// times and returns the last observed state with TimedOut set. With WaitForever
// only a match or cancellation ends the loop. Cancellation yields a
// KindInterrupted error and no Result.
func (w *Waiter) Wait(ctx context.Context, req Request) (*Result, error) {
	res, err := w.wait(ctx, req)
	w.metrics.PollFinished(outcome(res, err))
	return res, err
}

func outcome(res *Result, err error) string {
	switch {
	case err != nil && provider.KindOf(err) == provider.KindInterrupted:
		return "interrupted"
	case err != nil:
		return "error"
	case res.TimedOut:
		return "timed_out"
	default:
		return "matched"
	}
}

func (w *Waiter) wait(ctx context.Context, req Request) (*Result, error) {
	ref, accept, err := validate(req)
	if err != nil {
		return nil, err
	}

	forever := req.TimeoutSeconds == WaitForever
	chunks := 0
	if !forever {
		chunks = ChunkCount(req.TimeoutSeconds, req.IntervalSeconds)
	}

	var (
		current  *provider.BuildResult
		queryErr error
		queries  int
	)
	check := func(ctx context.Context) (bool, error) {
		queries++
		br, err := w.query(ctx, ref)
		if err != nil {
			queryErr = err
			return false, err
		}
		current = br
		if accept[br.State] {
			return true, nil
		}
		if forever || queries <= chunks {
			w.log.Info("[PollWaiter] sleeping for %d seconds", req.IntervalSeconds)
			w.metrics.PollSlept()
		}
		return false, nil
	}

	interval := time.Duration(req.IntervalSeconds) * w.unit
	if forever {
		err = wait.PollUntilContextCancel(ctx, interval, true, check)
	} else {
		err = wait.ExponentialBackoffWithContext(ctx, cadence(interval, chunks), check)
	}

	switch {
	case queryErr != nil:
		return nil, queryErr
	case err == nil:
		return matched(current), nil
	case ctx.Err() != nil:
		return nil, provider.NewInterrupted(ctx.Err())
	}

	w.log.Info("[PollWaiter] timed out after %d seconds, build result %s is %s", req.TimeoutSeconds, ref, current.State)
	return &Result{State: current.State, Status: current.Status, TimedOut: true}, nil
}

// ChunkCount is the number of sleeps a finite wait makes before giving up:
// ceil(timeout/interval).
func ChunkCount(timeout, interval int) int {
	return (timeout-1)/interval + 1
}

// cadence sleeps the full interval between checks, chunks times at most.
func cadence(interval time.Duration, chunks int) wait.Backoff {
	return wait.Backoff{
		Duration: interval,
		Factor:   1,
		Steps:    chunks + 1,
	}
}

func matched(br *provider.BuildResult) *Result {
	return &Result{State: br.State, Status: br.Status}
}

func (w *Waiter) query(ctx context.Context, ref provider.BuildResultRef) (*provider.BuildResult, error) {
	br, err := w.svc.GetBuildResult(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewInterrupted(ctx.Err())
		}
		if provider.KindOf(err) == provider.KindNotFound {
			return nil, &provider.Error{
				Kind:    provider.KindConfiguration,
				Message: fmt.Sprintf("build result %s not found", ref),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("failed to query build result %s: %w", ref, err)
	}
	w.log.Debug("[PollWaiter] build result %s is %s (%s)", ref, br.State, br.Status)
	return br, nil
}

func validate(req Request) (provider.BuildResultRef, map[provider.BuildState]bool, error) {
	ref, err := provider.ParseBuildResultRef(req.BuildResultRef)
	if err != nil {
		return "", nil, err
	}

	if len(req.States) == 0 {
		return "", nil, provider.Validationf("build states must not be empty, expected any of %s", knownStates())
	}
	accept := make(map[provider.BuildState]bool, len(req.States))
	var invalid []string
	for _, s := range req.States {
		state, ok := provider.ParseBuildState(s)
		if !ok {
			invalid = append(invalid, s)
			continue
		}
		accept[state] = true
	}
	if len(invalid) > 0 {
		return "", nil, provider.Validationf("invalid build states %q, expected any of %s", invalid, knownStates())
	}

	if req.TimeoutSeconds != WaitForever && req.TimeoutSeconds <= 0 {
		return "", nil, provider.Validationf("timeout %d is invalid, must be %d or greater than 0", req.TimeoutSeconds, WaitForever)
	}
	if int64(req.TimeoutSeconds) > MaxSeconds {
		return "", nil, provider.Validationf("timeout %d is invalid, must not exceed %d", req.TimeoutSeconds, MaxSeconds)
	}
	if req.IntervalSeconds <= 0 {
		return "", nil, provider.Validationf("interval %d is invalid, must be greater than 0", req.IntervalSeconds)
	}
	if int64(req.IntervalSeconds) > MaxSeconds {
		return "", nil, provider.Validationf("interval %d is invalid, must not exceed %d", req.IntervalSeconds, MaxSeconds)
	}
	if req.TimeoutSeconds != WaitForever && req.IntervalSeconds > req.TimeoutSeconds {
		return "", nil, provider.Validationf("interval %d must not exceed timeout %d", req.IntervalSeconds, req.TimeoutSeconds)
	}
	return ref, accept, nil
}

func knownStates() string {
	known := provider.KnownBuildStates()
	names := make([]string, len(known))
	for i, s := range known {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
