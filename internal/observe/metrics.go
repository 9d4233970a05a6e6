// Package observe records push-to-talk and conversation metrics through the
// OpenTelemetry metrics API and exposes them for Prometheus scraping.
//
// Every recording method is safe on a nil *Metrics so components can run
// without metrics wiring.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/parley"

// Session outcomes reported by RecordSession.
const (
	OutcomeDispatched     = "dispatched"
	OutcomeEmpty          = "empty"
	OutcomeAbandoned      = "abandoned"
	OutcomeStartFailed    = "start_failed"
	OutcomeDispatchFailed = "dispatch_failed"
	OutcomeShutdown       = "shutdown"
)

// Metrics holds the instruments used across the owner process.
type Metrics struct {
	Sessions       metric.Int64Counter
	ActiveSessions metric.Int64UpDownCounter

	// Segments counts final recognizer segments. Use with attribute
	// "result" = "appended" | "duplicate".
	Segments metric.Int64Counter

	FlushDuration    metric.Float64Histogram
	DispatchDuration metric.Float64Histogram
	DispatchErrors   metric.Int64Counter
	SpeechDuration   metric.Float64Histogram
	SpeechErrors     metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Sessions, err = m.Int64Counter("parley.ptt.sessions",
		metric.WithDescription("Push-to-talk sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.ptt.active_sessions",
		metric.WithDescription("Push-to-talk sessions currently held or flushing."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("parley.recognizer.segments",
		metric.WithDescription("Final recognizer segments by buffer result."),
	); err != nil {
		return nil, err
	}
	if met.FlushDuration, err = m.Float64Histogram("parley.ptt.flush.duration",
		metric.WithDescription("Time from release to the utterance being read."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("parley.dispatch.duration",
		metric.WithDescription("Latency of posting an utterance to the chat backend."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchErrors, err = m.Int64Counter("parley.dispatch.errors",
		metric.WithDescription("Utterances dropped because dispatch failed."),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("parley.tts.duration",
		metric.WithDescription("Duration of reply playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechErrors, err = m.Int64Counter("parley.tts.errors",
		metric.WithDescription("Reply playbacks that failed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionFinished records the outcome of a session started with SessionStarted.
func (m *Metrics) SessionFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordSegment(ctx context.Context, duplicate bool) {
	if m == nil {
		return
	}
	result := "appended"
	if duplicate {
		result = "duplicate"
	}
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordFlush(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.FlushDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordDispatch(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DispatchDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.DispatchErrors.Add(ctx, 1)
	}
}

func (m *Metrics) RecordSpeech(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SpeechDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.SpeechErrors.Add(ctx, 1)
	}
}
