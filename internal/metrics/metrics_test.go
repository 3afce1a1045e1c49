package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
	if r.CacheHits == nil || r.FlushLatency == nil || r.SearchTier1Latency == nil {
		t.Fatal("expected every collector field to be initialized")
	}
}

func TestNew_NilRegistererUsesPrivateRegistry(t *testing.T) {
	r := New(nil)
	// Must not panic when observing against the private registry.
	r.ObserveCache(1, 1, 1, 0.5)
	r.ObserveBreakerTransition("OPEN")
	r.ObserveFlush(3, 0.01, false)
	r.ObserveSearch(0.001, 0.01, 0.1, 5)
}

func TestRegistry_NilReceiverIsNoOp(t *testing.T) {
	var r *Registry
	// None of these may panic on a nil *Registry.
	r.ObserveCache(1, 1, 1, 0.9)
	r.ObserveBreakerTransition("CLOSED")
	r.ObserveBreakerRejection()
	r.ObserveFlush(1, 0.001, true)
	r.ObserveSearch(0.0001, 0.001, 0.01, 1)
}

func TestObserveCache_SkipsZeroDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveCache(0, 0, 0, 0.25)

	metric := &dto.Metric{}
	if err := r.CacheHits.Write(metric); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if metric.GetCounter().GetValue() != 0 {
		t.Errorf("expected CacheHits to stay at 0 after a zero delta, got %v", metric.GetCounter().GetValue())
	}

	gauge := &dto.Metric{}
	if err := r.CacheUtilization.Write(gauge); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if gauge.GetGauge().GetValue() != 0.25 {
		t.Errorf("expected CacheUtilization=0.25, got %v", gauge.GetGauge().GetValue())
	}
}

func TestObserveFlush_IncrementsFailuresOnlyWhenFailed(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveFlush(5, 0.02, false)
	r.ObserveFlush(2, 0.01, true)

	total := &dto.Metric{}
	if err := r.FlushTotal.Write(total); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if total.GetCounter().GetValue() != 2 {
		t.Errorf("expected FlushTotal=2, got %v", total.GetCounter().GetValue())
	}

	failures := &dto.Metric{}
	if err := r.FlushFailures.Write(failures); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if failures.GetCounter().GetValue() != 1 {
		t.Errorf("expected FlushFailures=1, got %v", failures.GetCounter().GetValue())
	}
}
