// Package metrics defines the OpenTelemetry instruments dialogd records
// across its pipeline. It mirrors how the rest of the corpus wires metrics:
// one struct of instruments built once from a metric.MeterProvider, with
// convenience Record* methods so call sites never touch attribute.KeyValue
// directly.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/brightline-voice/dialogd"

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Metrics holds every instrument dialogd records. All fields are safe for
// concurrent use — the underlying OTel instruments handle their own
// synchronization.
type Metrics struct {
	CallDuration   metric.Float64Histogram
	STTDuration    metric.Float64Histogram
	TTSDuration    metric.Float64Histogram

	UtterancesAccepted metric.Int64Counter
	UtterancesDropped  metric.Int64Counter
	STTFailures        metric.Int64Counter
	BargeIns           metric.Int64Counter
	OperatorApprovals  metric.Int64Counter
	OperatorRejections metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
}

// New builds a fully initialized Metrics from mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.CallDuration, err = m.Float64Histogram("dialogd.call.duration",
		metric.WithDescription("Total duration of a completed call."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("dialogd.stt.duration",
		metric.WithDescription("Latency of one transcription request."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("dialogd.tts.duration",
		metric.WithDescription("Latency of one synthesis request."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if met.UtterancesAccepted, err = m.Int64Counter("dialogd.utterances.accepted",
		metric.WithDescription("Utterances that passed the duration/RMS gates.")); err != nil {
		return nil, err
	}
	if met.UtterancesDropped, err = m.Int64Counter("dialogd.utterances.dropped",
		metric.WithDescription("Utterances discarded by the gates or the backpressure queue.")); err != nil {
		return nil, err
	}
	if met.STTFailures, err = m.Int64Counter("dialogd.stt.failures",
		metric.WithDescription("Failed transcription attempts, by kind.")); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("dialogd.barge_ins",
		metric.WithDescription("Caller speech that interrupted an in-flight agent turn.")); err != nil {
		return nil, err
	}
	if met.OperatorApprovals, err = m.Int64Counter("dialogd.operator.approvals",
		metric.WithDescription("Bookings approved by an operator.")); err != nil {
		return nil, err
	}
	if met.OperatorRejections, err = m.Int64Counter("dialogd.operator.rejections",
		metric.WithDescription("Bookings rejected by an operator, including timeouts.")); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("dialogd.sessions.active",
		metric.WithDescription("Number of live call sessions.")); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide Metrics, built from the global
// MeterProvider on first use. Panics only if instrument creation fails,
// which does not happen against the default no-op provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		var err error
		defaultM, err = New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to build default instruments: " + err.Error())
		}
	})
	return defaultM
}

func (m *Metrics) RecordSTTFailure(ctx context.Context, kind string) {
	m.STTFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordUtteranceDropped(ctx context.Context, reason string) {
	m.UtterancesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
