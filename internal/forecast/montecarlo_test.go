package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
)

var simNow = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func simConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	return cfg
}

func TestSimulateEmptyHistory(t *testing.T) {
	_, err := Simulate(context.Background(), nil, 30, simNow, simConfig())
	if !errors.Is(err, domain.ErrInsufficientSample) {
		t.Fatalf("expected ErrInsufficientSample, got %v", err)
	}
	// non-positive values are not usable history either
	_, err = Simulate(context.Background(), []float64{0, -3}, 30, simNow, simConfig())
	if !errors.Is(err, domain.ErrInsufficientSample) {
		t.Fatalf("expected ErrInsufficientSample for non-positive history, got %v", err)
	}
}

func TestSimulateScenario(t *testing.T) {
	history := []float64{8, 10, 9, 11, 8}
	fc, err := Simulate(context.Background(), history, 30, simNow, simConfig())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	// 30 points over per-cycle throughput 8..11 always lands on 3 or 4 cycles
	if fc.P50Cycles < 3 || fc.P50Cycles > 4 {
		t.Fatalf("p50 = %v, want within [3,4]", fc.P50Cycles)
	}
	if fc.P95Cycles > 4 {
		t.Fatalf("p95 = %v, want at most 4", fc.P95Cycles)
	}
	if fc.P50Cycles > fc.P80Cycles || fc.P80Cycles > fc.P95Cycles {
		t.Fatalf("percentiles not monotonic: %v %v %v", fc.P50Cycles, fc.P80Cycles, fc.P95Cycles)
	}
	if fc.P50Date.After(fc.P80Date) || fc.P80Date.After(fc.P95Date) {
		t.Fatalf("dates not monotonic: %v %v %v", fc.P50Date, fc.P80Date, fc.P95Date)
	}
	if fc.EarliestDate.After(fc.P50Date) || fc.LatestDate.Before(fc.P95Date) {
		t.Fatalf("earliest/latest do not bound the percentiles")
	}
	if fc.LowConfidence {
		t.Fatalf("five-cycle history should not be low confidence")
	}
	if fc.TrialCount != 10000 || fc.SampleCycles != 5 {
		t.Fatalf("trials/sample = %d/%d, want 10000/5", fc.TrialCount, fc.SampleCycles)
	}
	if fc.RunID == "" {
		t.Fatalf("missing run id")
	}
}

func TestSimulateBatchInvariance(t *testing.T) {
	history := []float64{8, 10, 9, 11, 8}

	one := simConfig()
	one.BatchSize = one.Trials
	one.Parallelism = 1
	a, err := Simulate(context.Background(), history, 55, simNow, one)
	if err != nil {
		t.Fatalf("Simulate single batch: %v", err)
	}

	many := simConfig()
	many.BatchSize = 100
	many.Parallelism = 8
	b, err := Simulate(context.Background(), history, 55, simNow, many)
	if err != nil {
		t.Fatalf("Simulate many batches: %v", err)
	}

	if a.P50Cycles != b.P50Cycles || a.P80Cycles != b.P80Cycles || a.P95Cycles != b.P95Cycles {
		t.Fatalf("batching changed percentiles: %v/%v/%v vs %v/%v/%v",
			a.P50Cycles, a.P80Cycles, a.P95Cycles, b.P50Cycles, b.P80Cycles, b.P95Cycles)
	}
	if !a.ExpectedDate.Equal(b.ExpectedDate) || !a.EarliestDate.Equal(b.EarliestDate) || !a.LatestDate.Equal(b.LatestDate) {
		t.Fatalf("batching changed dates")
	}
}

func TestSimulateThinHistoryFlagsLowConfidence(t *testing.T) {
	fc, err := Simulate(context.Background(), []float64{5, 6}, 20, simNow, simConfig())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !fc.LowConfidence {
		t.Fatalf("two-cycle history must be flagged low confidence")
	}
}

func TestSimulateNothingRemaining(t *testing.T) {
	fc, err := Simulate(context.Background(), []float64{8, 9}, 0, simNow, simConfig())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if fc.P95Cycles != 0 {
		t.Fatalf("p95 with no remaining scope = %v, want 0", fc.P95Cycles)
	}
	if !fc.P50Date.Equal(simNow) {
		t.Fatalf("p50 date with no remaining scope = %v, want now", fc.P50Date)
	}
}

func TestSimulateCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, []float64{8, 9, 10}, 100, simNow, simConfig())
	if err == nil {
		t.Fatalf("expected error from canceled context")
	}
}
