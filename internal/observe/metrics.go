// Package observe provides the OpenTelemetry metrics, tracing helpers and
// HTTP middleware used across the dice bot.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus by [InitProvider]. [DefaultMetrics] returns a process-wide
// instance bound to the global meter provider; tests should build their own
// with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all dice bot metrics.
const meterName = "github.com/MrWong99/dicebot"

// Skip reasons recorded with [Metrics.RecordSkip].
const (
	SkipNotCharacter    = "not_character"
	SkipNoTarget        = "no_target"
	SkipNoResourceField = "no_resource_field"
	SkipUnknownResource = "unknown_resource"
)

// Metrics holds the metric instruments of the dice bot. All fields are safe
// for concurrent use.
type Metrics struct {
	// LoadDuration tracks game-system resolution latency inside the load
	// queue. Attributes: system, source (cache, static, dynamic), status.
	LoadDuration metric.Float64Histogram

	// RollDuration tracks evaluator latency. Attributes: system.
	RollDuration metric.Float64Histogram

	// Commands counts recognised commands. Attributes: kind (roll, resource).
	Commands metric.Int64Counter

	// Rolls counts evaluations. Attributes: system, outcome
	// (ok, declined, error).
	Rolls metric.Int64Counter

	// Dispatched counts system messages published to chat. Attributes: secret.
	Dispatched metric.Int64Counter

	// Skips counts resource commands skipped for missing data. Attributes:
	// reason.
	Skips metric.Int64Counter

	// QueueDepth reports tasks waiting in a load queue. Queues are attached
	// with [Metrics.ObserveQueueDepth]. Attributes: queue.
	QueueDepth metric.Int64ObservableGauge

	// InFlight tracks chat events currently being processed.
	InFlight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP handler latency. Attributes: method,
	// path.
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.LoadDuration, err = m.Float64Histogram("dicebot.gamesystem.load.duration",
		metric.WithDescription("Latency of game-system resolution in the load queue."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RollDuration, err = m.Float64Histogram("dicebot.roll.duration",
		metric.WithDescription("Latency of dice-roll evaluation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("dicebot.commands",
		metric.WithDescription("Recognised chat commands by kind."),
	); err != nil {
		return nil, err
	}
	if met.Rolls, err = m.Int64Counter("dicebot.rolls",
		metric.WithDescription("Dice-roll evaluations by game system and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Dispatched, err = m.Int64Counter("dicebot.dispatched",
		metric.WithDescription("System messages published to chat."),
	); err != nil {
		return nil, err
	}
	if met.Skips, err = m.Int64Counter("dicebot.resource.skips",
		metric.WithDescription("Resource commands skipped for missing data, by reason."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64ObservableGauge("dicebot.loadqueue.depth",
		metric.WithDescription("Tasks waiting in a load queue."),
	); err != nil {
		return nil, err
	}
	if met.InFlight, err = m.Int64UpDownCounter("dicebot.events.in_flight",
		metric.WithDescription("Chat events currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("dicebot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built from
// [otel.GetMeterProvider]. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordLoad records a game-system resolution.
func (m *Metrics) RecordLoad(ctx context.Context, system, source, status string, seconds float64) {
	m.LoadDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("system", system),
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

// RecordRoll records an evaluation outcome.
func (m *Metrics) RecordRoll(ctx context.Context, system, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("system", system))
	m.RollDuration.Record(ctx, seconds, attrs)
	m.Rolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("outcome", outcome),
	))
}

// RecordCommand counts a recognised command of the given kind.
func (m *Metrics) RecordCommand(ctx context.Context, kind string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDispatch counts a published system message.
func (m *Metrics) RecordDispatch(ctx context.Context, secret bool) {
	m.Dispatched.Add(ctx, 1, metric.WithAttributes(attribute.Bool("secret", secret)))
}

// RecordSkip counts a skipped resource command.
func (m *Metrics) RecordSkip(ctx context.Context, reason string) {
	m.Skips.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ObserveQueueDepth reports depth() as the depth of the named queue on every
// collection until the returned registration is unregistered.
func (m *Metrics) ObserveQueueDepth(queue string, depth func() int) (metric.Registration, error) {
	attrs := metric.WithAttributes(attribute.String("queue", queue))
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.QueueDepth, int64(depth()), attrs)
		return nil
	}, m.QueueDepth)
}
