package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *libauth.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() libauth.MetricsSnapshot
	AuditDropped() uint64
}

// latencyView is one engine histogram flattened into a cumulative bucket
// gauge keyed by "le" plus a sample count gauge.
type latencyView struct {
	id      libauth.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics as OpenTelemetry observable instruments.
type Exporter struct {
	source       Source
	counters     map[libauth.MetricID]metric.Int64ObservableCounter
	latency      []latencyView
	auditDropped metric.Int64ObservableCounter
	leSets       []metric.MeasurementOption
	registration metric.Registration
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *libauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource is NewExporter for any Source.
func NewExporterFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[libauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		leSets:   make([]metric.MeasurementOption, len(internaldefs.HistogramBucketLabels)),
	}
	for i, le := range internaldefs.HistogramBucketLabels {
		e.leSets[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}

	var instruments []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		instruments = append(instruments, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		view := latencyView{id: def.ID}
		var err error
		view.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("otel bucket gauge %s: %w", def.Name, err)
		}
		view.count, err = meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("otel count gauge %s: %w", def.Name, err)
		}
		e.latency = append(e.latency, view)
		instruments = append(instruments, view.buckets, view.count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("otel counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	instruments = append(instruments, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("otel register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, view := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[view.id]))
		for i, total := range cumulative {
			o.ObserveInt64(view.buckets, int64(total), e.leSets[i])
		}
		o.ObserveInt64(view.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
