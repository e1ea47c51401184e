// Package orchestrator is the facade callers use to drive builds: every
// operation validates its input, delegates to the poll, resolve and retry
// packages, and reports a flat key-value response.
//
// Each finished operation, successful or not, is traced, counted, recorded
// in the history store and published on the broker. Those side channels
// are best effort and never change an operation's outcome.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"buildctl-agent/src/broker"
	"buildctl-agent/src/contracts"
	"buildctl-agent/src/logger"
	"buildctl-agent/src/metrics"
	"buildctl-agent/src/poll"
	"buildctl-agent/src/provider"
	"buildctl-agent/src/resolve"
	"buildctl-agent/src/retry"
	"buildctl-agent/src/store"
	"buildctl-agent/src/telemetry"
)

// recordTimeout bounds the store and broker writes made after an operation.
const recordTimeout = 5 * time.Second

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBroker publishes an event per operation on b.
func WithBroker(b broker.Broker) Option {
	return func(o *Orchestrator) {
		o.broker = b
	}
}

// WithStore records every operation in s.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithMetrics counts operations, sleeps, retries and downloaded bytes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTimeUnit sets the length of one second of poll intervals and retry
// delays. Tests shrink it to keep real waits short.
func WithTimeUnit(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.unit = d
	}
}

// WithClock replaces time.Now for operation timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator implements the facade operations on top of a BuildService.
// It is safe for concurrent use when the BuildService is.
type Orchestrator struct {
	svc     provider.BuildService
	log     logger.Logger
	broker  broker.Broker
	store   store.Store
	metrics *metrics.Metrics
	unit    time.Duration
	now     func() time.Time

	waiter   *poll.Waiter
	resolver *resolve.Resolver
	retrier  *retry.Executor
}

// New creates an Orchestrator. The broker and store are optional.
func New(svc provider.BuildService, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:  svc,
		log:  log,
		unit: time.Second,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.waiter = poll.NewWaiter(svc, log, poll.WithMetrics(o.metrics), poll.WithTimeUnit(o.unit))
	o.resolver = resolve.NewResolver(svc, log, resolve.WithMetrics(o.metrics))
	o.retrier = retry.NewExecutor(log, retry.WithMetrics(o.metrics))
	return o
}

// History returns recorded operations, newest first.
func (o *Orchestrator) History(ctx context.Context, filter contracts.OperationFilter) ([]contracts.OperationRecord, error) {
	if o.store == nil {
		return nil, provider.Configurationf("operation history is not configured")
	}
	return o.store.ListOperations(ctx, filter)
}

// ErrorKind names the class of err as reported in events and API errors.
// Exhausted retries get their own name, distinct from a single transient
// failure.
func ErrorKind(err error) string {
	var exhausted *retry.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return "retry_exhausted"
	}
	return provider.KindOf(err).String()
}

// instrument runs fn inside a span and reports its outcome.
func instrument[R Response](ctx context.Context, o *Orchestrator, op, subject string, fn func(ctx context.Context) (R, error)) (R, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator."+op,
		trace.WithAttributes(
			attribute.String("buildctl.operation", op),
			attribute.String("buildctl.subject", subject),
		),
	)
	defer span.End()

	started := o.now()
	res, err := fn(ctx)

	ev := contracts.OperationEvent{
		ID:         uuid.NewString(),
		Operation:  op,
		Subject:    subject,
		Outcome:    contracts.OutcomeOK,
		Timestamp:  started.UTC().Format(time.RFC3339),
		DurationMS: o.now().Sub(started).Milliseconds(),
	}
	if err != nil {
		ev.Outcome = contracts.OutcomeError
		ev.ErrorKind = ErrorKind(err)
		ev.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, ev.ErrorKind)
	} else {
		ev.Fields = res.Fields()
	}
	span.SetAttributes(attribute.String("buildctl.outcome", ev.Outcome))

	o.metrics.Operation(op, ev.Outcome)
	o.record(ctx, ev)
	return res, err
}

// record persists and publishes ev. The caller's cancellation does not
// apply, so interrupted operations are still recorded.
func (o *Orchestrator) record(ctx context.Context, ev contracts.OperationEvent) {
	if o.store == nil && o.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if o.store != nil {
		if err := o.store.RecordOperation(ctx, ev); err != nil {
			o.log.Warn("[Orchestrator] failed to record %s %s: %v", ev.Operation, ev.ID, err)
		}
	}
	if o.broker != nil {
		if err := broker.PublishEvent(ctx, o.broker, ev); err != nil {
			o.log.Warn("[Orchestrator] failed to publish %s %s: %v", ev.Operation, ev.ID, err)
		}
	}
}
