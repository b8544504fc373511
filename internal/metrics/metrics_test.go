package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/foxzi/pushry/internal/push"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var metric dto.Metric
	if err := h.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Histogram.GetSampleCount()
}

func TestNew(t *testing.T) {
	m := New()
	if m.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}

	// Vectors only show up once a label set is used
	m.SendsTotal.WithLabelValues("android", "delivered")
	m.RunsTotal.WithLabelValues("completed")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"pushry_sends_total", "pushry_batches_total", "pushry_runs_total", "pushry_uptime_seconds"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
	SetGlobal(nil)
}

func TestObserveSend(t *testing.T) {
	m := New()

	m.ObserveSend(push.ChannelAndroid, push.Delivered{ReceiptID: "x"})
	m.ObserveSend(push.ChannelAndroid, push.Delivered{ReceiptID: "y"})
	m.ObserveSend(push.ChannelIOS, push.InvalidToken{Message: "gone"})
	m.ObserveSend(push.ChannelAndroid, push.TransientError{Message: "timeout"})

	tests := []struct {
		channel, outcome string
		want             float64
	}{
		{"android", "delivered", 2},
		{"ios", "invalid_token", 1},
		{"android", "transient_error", 1},
		{"ios", "delivered", 0},
	}
	for _, tt := range tests {
		c, err := m.SendsTotal.GetMetricWithLabelValues(tt.channel, tt.outcome)
		if err != nil {
			t.Fatalf("Failed to get counter: %v", err)
		}
		if got := counterValue(t, c); got != tt.want {
			t.Errorf("sends{%s,%s} = %v, want %v", tt.channel, tt.outcome, got, tt.want)
		}
	}
}

func TestObserveBatch(t *testing.T) {
	m := New()

	m.ObserveBatch(100, 200*time.Millisecond)
	m.ObserveBatch(37, 50*time.Millisecond)

	if got := counterValue(t, m.BatchesTotal); got != 2 {
		t.Errorf("batches = %v, want 2", got)
	}
	if got := histogramCount(t, m.BatchSize); got != 2 {
		t.Errorf("batch size samples = %v, want 2", got)
	}
	if got := histogramCount(t, m.BatchDurationSeconds); got != 2 {
		t.Errorf("batch duration samples = %v, want 2", got)
	}
}

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun(&push.Result{Total: 10, Duration: time.Second})
	m.ObserveRun(&push.Result{Total: 10, Skipped: 4, Duration: time.Second})

	completed, _ := m.RunsTotal.GetMetricWithLabelValues("completed")
	cancelled, _ := m.RunsTotal.GetMetricWithLabelValues("cancelled")
	if counterValue(t, completed) != 1 || counterValue(t, cancelled) != 1 {
		t.Error("expected one completed and one cancelled run")
	}
	if got := counterValue(t, m.RunSkippedTotal); got != 4 {
		t.Errorf("skipped = %v, want 4", got)
	}
	if got := histogramCount(t, m.RunDurationSeconds); got != 2 {
		t.Errorf("run duration samples = %v, want 2", got)
	}

	m.ObserveRejected(3)
	m.ObserveRejected(2)
	if got := counterValue(t, m.RejectedTokensTotal); got != 5 {
		t.Errorf("rejected = %v, want 5", got)
	}
}

// Metrics must satisfy the engine and runner observer interfaces
var (
	_ push.Observer = (*Metrics)(nil)
	_ interface {
		ObserveRun(*push.Result)
		ObserveRejected(int)
	} = (*Metrics)(nil)
)
