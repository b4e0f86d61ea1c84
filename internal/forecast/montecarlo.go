package forecast

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
	"github.com/aytch4k/linear-app-productivity-metrics/internal/stats"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config carries the simulation tunables. Seed makes the whole run
// reproducible: trial i always draws from a source seeded with Seed+i,
// so the outcome distribution is identical however the trials are
// batched or scheduled across workers.
type Config struct {
	Trials          int
	BatchSize       int
	MinSample       int
	Seed            int64
	CycleLengthDays float64
	Parallelism     int
}

func DefaultConfig() Config {
	return Config{
		Trials:          10000,
		BatchSize:       1000,
		MinSample:       3,
		Seed:            1,
		CycleLengthDays: 14,
		Parallelism:     4,
	}
}

// Simulate estimates how many cycles the remaining scope needs by
// resampling the historical per-cycle throughput distribution with
// replacement: each trial accumulates sampled throughput cycle by cycle
// until it covers the remaining points, and the sorted trial outcomes
// give the 50/80/95% confidence forecast.
//
// Non-positive history values are dropped before sampling. An empty
// usable history returns domain.ErrInsufficientSample without
// simulating; a history shorter than MinSample still produces a
// forecast but flags it low-confidence. Batches exist only to bound
// peak memory and allow cancellation between them; they are merged by
// concatenation and cannot affect the final percentiles.
func Simulate(ctx context.Context, history []float64, remainingPoints float64, now time.Time, cfg Config) (domain.MonteCarloForecast, error) {
	sample := make([]float64, 0, len(history))
	for _, v := range history {
		if v > 0 {
			sample = append(sample, v)
		}
	}
	if len(sample) == 0 {
		return domain.MonteCarloForecast{}, domain.ErrInsufficientSample
	}

	if cfg.Trials <= 0 {
		cfg.Trials = 10000
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > cfg.Trials {
		cfg.BatchSize = cfg.Trials
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.CycleLengthDays <= 0 {
		cfg.CycleLengthDays = 14
	}

	outcomes := make([]float64, cfg.Trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)
	for start := 0; start < cfg.Trials; start += cfg.BatchSize {
		start := start
		end := start + cfg.BatchSize
		if end > cfg.Trials {
			end = cfg.Trials
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each trial owns its source; batch workers only write
			// disjoint slice segments.
			for i := start; i < end; i++ {
				rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
				outcomes[i] = runTrial(rng, sample, remainingPoints)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// interrupted runs are discarded, never partially reported
		return domain.MonteCarloForecast{}, err
	}

	sort.Float64s(outcomes)
	p50 := stats.PercentileSorted(outcomes, 50)
	p80 := stats.PercentileSorted(outcomes, 80)
	p95 := stats.PercentileSorted(outcomes, 95)

	fc := domain.MonteCarloForecast{
		RunID:           uuid.NewString(),
		SimulatedAt:     now,
		RemainingPoints: remainingPoints,
		TrialCount:      cfg.Trials,
		SampleCycles:    len(sample),
		LowConfidence:   len(sample) < cfg.MinSample,
		P50Cycles:       p50,
		P80Cycles:       p80,
		P95Cycles:       p95,
		P50Date:         cyclesToDate(now, p50, cfg.CycleLengthDays),
		P80Date:         cyclesToDate(now, p80, cfg.CycleLengthDays),
		P95Date:         cyclesToDate(now, p95, cfg.CycleLengthDays),
		ExpectedDate:    cyclesToDate(now, stats.Mean(outcomes), cfg.CycleLengthDays),
		EarliestDate:    cyclesToDate(now, outcomes[0], cfg.CycleLengthDays),
		LatestDate:      cyclesToDate(now, outcomes[len(outcomes)-1], cfg.CycleLengthDays),
	}
	return fc, nil
}

// runTrial draws one simulated future: per-cycle throughput sampled with
// replacement until the cumulative total covers the remaining scope.
func runTrial(rng *rand.Rand, sample []float64, remaining float64) float64 {
	if remaining <= 0 {
		return 0
	}
	var cum float64
	cycles := 0
	for cum < remaining {
		cum += sample[rng.Intn(len(sample))]
		cycles++
	}
	return float64(cycles)
}

func cyclesToDate(now time.Time, cycles, cycleLengthDays float64) time.Time {
	return now.Add(time.Duration(cycles * cycleLengthDays * 24 * float64(time.Hour)))
}
