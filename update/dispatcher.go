package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/rsg/rsgerr"
)

// Handle identifies a registered observer. Handles are never reused by a
// Dispatcher, so a stale handle cannot unregister a newer observer.
type Handle uint64

type entry struct {
	handle Handle
	name   string
	obs    Observer
}

// Report summarizes one fan-out.
type Report struct {
	// Delivered counts observers that accepted the mutation.
	Delivered int

	// Failed counts observers that returned an error or panicked.
	Failed int

	// Err joins every observer error, nil when Failed is zero.
	Err error
}

// Dispatcher fans committed mutations out to registered observers.
//
// Registration order is delivery order. Observers are notified synchronously
// on the caller's goroutine; the store calls Dispatch while holding its write
// lock, so deliveries of successive mutations never interleave.
//
// A Dispatcher is safe for concurrent use. Observers may be registered or
// unregistered at any time; a fan-out already in flight uses the set of
// observers present when it started.
type Dispatcher struct {
	mu      sync.RWMutex
	entries []entry
	next    Handle

	logger     *slog.Logger
	tracer     trace.Tracer
	deliveries metric.Int64Counter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithMeterProvider records per-observer delivery counts on provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		if provider == nil {
			return
		}
		counter, err := provider.Meter("github.com/zero-day-ai/rsg/update").Int64Counter(
			"rsg.dispatch.deliveries",
			metric.WithDescription("Mutation deliveries to observers"),
			metric.WithUnit("1"),
		)
		if err != nil {
			d.logger.Warn("failed to create delivery counter", "error", err)
			return
		}
		d.deliveries = counter
	}
}

// NewDispatcher creates a Dispatcher with no observers.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		next:   1,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("rsg"),
	}
	counter, _ := metricnoop.NewMeterProvider().Meter("rsg").Int64Counter("rsg.dispatch.deliveries")
	d.deliveries = counter
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterOption configures a registration.
type RegisterOption func(*entry)

// WithName labels the observer in logs and metrics.
func WithName(name string) RegisterOption {
	return func(e *entry) {
		e.name = name
	}
}

// Register adds obs to the end of the delivery order and returns its handle.
func (d *Dispatcher) Register(obs Observer, opts ...RegisterOption) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := entry{handle: d.next, obs: obs}
	d.next++
	for _, opt := range opts {
		opt(&e)
	}
	if e.name == "" {
		e.name = fmt.Sprintf("observer-%d", e.handle)
	}
	d.entries = append(d.entries, e)

	d.logger.Debug("registered observer", "handle", e.handle, "name", e.name)
	return e.handle
}

// Unregister removes the observer behind h. It reports whether h was known.
func (d *Dispatcher) Unregister(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.entries {
		if e.handle == h {
			d.entries = append(d.entries[:i:i], d.entries[i+1:]...)
			d.logger.Debug("unregistered observer", "handle", h, "name", e.name)
			return true
		}
	}
	return false
}

// Len returns the number of registered observers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Dispatch delivers m to every observer in registration order.
// Observer failures are isolated, logged and reported; they never stop the
// remaining deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, m Mutation) Report {
	d.mu.RLock()
	snapshot := make([]entry, len(d.entries))
	copy(snapshot, d.entries)
	d.mu.RUnlock()

	var report Report
	if len(snapshot) == 0 {
		return report
	}

	ctx, span := d.tracer.Start(ctx, "rsg.dispatch",
		trace.WithAttributes(
			attribute.String("rsg.op", string(m.Op)),
			attribute.String("rsg.id", m.ID.String()),
			attribute.Int("rsg.observers", len(snapshot)),
		),
	)
	defer span.End()

	var errs []error
	for _, e := range snapshot {
		err := d.deliver(ctx, e, m)
		result := "ok"
		if err != nil {
			result = "error"
			report.Failed++
			errs = append(errs, err)
			span.RecordError(err, trace.WithAttributes(attribute.String("rsg.observer", e.name)))
			d.logger.Warn("observer rejected mutation",
				"observer", e.name,
				"op", m.Op,
				"id", m.ID,
				"error", err,
			)
		} else {
			report.Delivered++
		}
		d.deliveries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("observer", e.name),
			attribute.String("op", string(m.Op)),
			attribute.String("result", result),
		))
	}

	if report.Failed > 0 {
		report.Err = errors.Join(errs...)
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d observers failed", report.Failed, len(snapshot)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, e entry, m Mutation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rsgerr.New("update.Dispatch", rsgerr.KindInternal, "observer %s panicked: %v", e.name, r)
		}
	}()
	if err := m.Apply(ctx, e.obs); err != nil {
		return rsgerr.Wrap("update.Dispatch", rsgerr.KindTransport, err).
			WithContext(map[string]any{"observer": e.name})
	}
	return nil
}

// Observer returns the dispatcher itself as an Observer, so a dispatcher can
// be chained behind another one. The returned error joins observer failures.
func (d *Dispatcher) Observer() Observer {
	return ObserverFunc(func(ctx context.Context, m Mutation) error {
		return d.Dispatch(ctx, m).Err
	})
}
