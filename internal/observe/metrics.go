// Package observe provides application-wide observability primitives for
// audiosync: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all audiosync metrics.
const meterName = "github.com/MrWong99/audiosync"

// Drop reasons used with [Metrics.RecordDrop].
const (
	DropOverflow = "overflow"
	DropShutdown = "shutdown"
	DropSubmit   = "submit"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Ingest path ---

	// ChunksIngested counts chunks accepted into the ingest queue.
	ChunksIngested metric.Int64Counter

	// ChunksDropped counts chunks discarded before playback. Use with attribute:
	//   attribute.String("reason", ...)
	ChunksDropped metric.Int64Counter

	// --- Consumer ---

	// ChunksProcessed counts chunks converted by the consumer. Use with attribute:
	//   attribute.String("strategy", ...)
	ChunksProcessed metric.Int64Counter

	// OutputFrames counts frames submitted to the host device.
	OutputFrames metric.Int64Counter

	// QueueDepth is the host device queue depth in output buffers, sampled
	// once per processed chunk.
	QueueDepth metric.Int64Gauge

	// Tempo is the tempo multiplier currently applied to the engine.
	Tempo metric.Float64Gauge

	// Underruns counts chunks processed while the device queue was dry.
	Underruns metric.Int64Counter

	// DrainEntered counts transitions into drain mode.
	DrainEntered metric.Int64Counter

	// --- Pacing ---

	// PacingSleep tracks how long the producer was paced per ingest event.
	PacingSleep metric.Float64Histogram

	// PacingResets counts fresh pacing epochs.
	PacingResets metric.Int64Counter

	// BusyWaitToggles counts busy-wait mode switches. Use with attribute:
	//   attribute.String("state", "on"|"off")
	BusyWaitToggles metric.Int64Counter

	// --- Lifecycle ---

	// PipelineReinits counts successful pipeline (re)initialisations.
	PipelineReinits metric.Int64Counter

	// PipelineFailures counts initialisation failures that put the pipeline
	// into critical failure.
	PipelineFailures metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// sleepBuckets defines histogram bucket boundaries (in seconds) for pacing
// sleeps, which are bounded by the maximum sleep of half a second.
var sleepBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.ChunksIngested, err = m.Int64Counter("audiosync.chunks.ingested",
		metric.WithDescription("Chunks accepted into the ingest queue."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("audiosync.chunks.dropped",
		metric.WithDescription("Chunks discarded before playback by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksProcessed, err = m.Int64Counter("audiosync.chunks.processed",
		metric.WithDescription("Chunks converted by the consumer by strategy."),
	); err != nil {
		return nil, err
	}
	if met.OutputFrames, err = m.Int64Counter("audiosync.output.frames",
		metric.WithDescription("Frames submitted to the host audio device."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("audiosync.underruns",
		metric.WithDescription("Chunks processed while the device queue was below the low watermark."),
	); err != nil {
		return nil, err
	}
	if met.DrainEntered, err = m.Int64Counter("audiosync.drain.entered",
		metric.WithDescription("Transitions into drain mode."),
	); err != nil {
		return nil, err
	}
	if met.PacingResets, err = m.Int64Counter("audiosync.pacing.resets",
		metric.WithDescription("Fresh pacing epochs."),
	); err != nil {
		return nil, err
	}
	if met.BusyWaitToggles, err = m.Int64Counter("audiosync.busy_wait.toggles",
		metric.WithDescription("Busy-wait pacing mode switches by new state."),
	); err != nil {
		return nil, err
	}
	if met.PipelineReinits, err = m.Int64Counter("audiosync.pipeline.reinits",
		metric.WithDescription("Successful pipeline initialisations."),
	); err != nil {
		return nil, err
	}
	if met.PipelineFailures, err = m.Int64Counter("audiosync.pipeline.failures",
		metric.WithDescription("Pipeline initialisation failures."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.QueueDepth, err = m.Int64Gauge("audiosync.output.queue_depth",
		metric.WithDescription("Host device queue depth in output buffers."),
	); err != nil {
		return nil, err
	}
	if met.Tempo, err = m.Float64Gauge("audiosync.tempo",
		metric.WithDescription("Tempo multiplier applied to the resampling engine."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.PacingSleep, err = m.Float64Histogram("audiosync.pacing.sleep",
		metric.WithDescription("Time the producer was paced per ingest event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sleepBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("audiosync.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDrop records a dropped chunk with the given reason.
func (m *Metrics) RecordDrop(ctx context.Context, reason string, n int64) {
	if n <= 0 {
		return
	}
	m.ChunksDropped.Add(ctx, n,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProcessed records one processed chunk for the given consumer strategy.
func (m *Metrics) RecordProcessed(ctx context.Context, strategy string) {
	m.ChunksProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// RecordBusyWait records a busy-wait mode switch.
func (m *Metrics) RecordBusyWait(ctx context.Context, on bool) {
	state := "off"
	if on {
		state = "on"
	}
	m.BusyWaitToggles.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}
