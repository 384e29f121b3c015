package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/libauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot libauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() libauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := libauth.MetricsSnapshot{
		Counters:   make(map[libauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[libauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					name := m.Name
					if le, ok := dp.Attributes.Value("le"); ok {
						name += "{le=" + le.AsString() + "}"
					}
					out[name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("libauth-test")

	src := &fakeSource{
		snapshot: libauth.MetricsSnapshot{
			Counters: map[libauth.MetricID]uint64{
				libauth.MetricSignInSuccess: 3,
				libauth.MetricAccountLocked: 1,
			},
			Histograms: map[libauth.MetricID][]uint64{
				libauth.MetricAuthenticateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 2,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	checks := map[string]int64{
		"libauth_sign_in_success_total":                         3,
		"libauth_account_locked_total":                          1,
		"libauth_sign_in_failure_total":                         0,
		"libauth_audit_dropped_total":                           2,
		"libauth_authenticate_latency_seconds_bucket{le=0.005}": 1,
		"libauth_authenticate_latency_seconds_bucket{le=0.5}":   7,
		"libauth_authenticate_latency_seconds_bucket{le=+Inf}":  8,
		"libauth_authenticate_latency_seconds_count":            8,
	}
	for name, want := range checks {
		v, ok := got[name]
		if !ok {
			t.Fatalf("metric %s not collected", name)
		}
		if v != want {
			t.Fatalf("%s: expected %d, got %d", name, want, v)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("libauth-test")

	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterCloseStopsCallback(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("libauth-test")
	src := &fakeSource{snapshot: libauth.MetricsSnapshot{
		Counters: map[libauth.MetricID]uint64{libauth.MetricTokenIssued: 5},
	}}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	if got := collect(t, reader)["libauth_token_issued_total"]; got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := collect(t, reader)["libauth_token_issued_total"]; ok {
		t.Fatal("no observations expected after Close")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	meter := provider.Meter("libauth-test")

	src := &fakeSource{
		snapshot: libauth.MetricsSnapshot{
			Counters: map[libauth.MetricID]uint64{
				libauth.MetricSignInSuccess: 1,
			},
			Histograms: map[libauth.MetricID][]uint64{
				libauth.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[libauth.MetricSignInSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
