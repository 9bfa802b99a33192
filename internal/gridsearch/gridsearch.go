// Package gridsearch is the parallel parameter-sweep driver (spec §4.6): it
// runs the Cartesian product of token_amounts × token_frequencies, each
// combo repeated num_seeds times, averages StabilityMetrics per combo, and
// ranks combos ascending by stability_score (lower is better).
//
// Concurrency is bounded with golang.org/x/sync/semaphore and coordinated
// with golang.org/x/sync/errgroup, the same pairing stadam23-Eve-flipper
// uses to bound its concurrent scan workers — grounded there rather than on
// the teacher, since the teacher's engine uses an unbounded sync.WaitGroup
// per market and has no notion of a concurrency cap. A cancelled search
// still reports the ranking of whatever combos finished before
// cancellation (spec §4.6).
package gridsearch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"roomauction/internal/errs"
	"roomauction/internal/simulator"
)

// Config is one grid-search sweep's parameters.
type Config struct {
	Base             simulator.Config
	TokenAmounts     []decimal.Decimal
	TokenFrequencies []int
	NumSeeds         int
	BaseSeed         int64
	// MaxConcurrency bounds simultaneous simulator runs. Defaults to 4 when
	// zero.
	MaxConcurrency int64
}

func validate(cfg Config) error {
	if len(cfg.TokenAmounts) == 0 {
		return errs.New(errs.Validation, "at least one token_amount is required")
	}
	if len(cfg.TokenFrequencies) == 0 {
		return errs.New(errs.Validation, "at least one token_frequency is required")
	}
	if cfg.NumSeeds <= 0 {
		return errs.New(errs.Validation, "num_seeds must be positive")
	}
	return nil
}

// ComboResult is one (token_amount, token_frequency) cell's averaged
// outcome across num_seeds independent runs.
type ComboResult struct {
	TokenAmount     decimal.Decimal
	TokenFrequency  int
	AvgMetrics      simulator.Metrics
	BaseSeedResult  *simulator.Result // the seed == BaseSeed run, for daily_detail/best_daily
}

// Result is the full sweep's ranked output.
type Result struct {
	// Combos is ranked ascending by AvgMetrics.StabilityScore (best first).
	Combos []ComboResult
	Best   *ComboResult
	// BestDaily is the best combo's base-seed run, keyed by day number, so
	// callers get exactly MaxDays keys (spec §8 scenario 6).
	BestDaily map[int]simulator.DailyResult
	// Heatmap[frequencyIndex][amountIndex] = stability_score for that cell,
	// math.NaN() where cancellation left a cell unrun.
	Heatmap [][]float64
}

// Progress is invoked after each combo completes with (completed, total).
type Progress func(completed, total int)

// Run executes the full sweep. If ctx is cancelled mid-sweep, Run returns
// the partial Result (ranking of whatever combos finished) and a nil error:
// cancellation is not itself a failure per spec §4.6.
func Run(ctx context.Context, cfg Config, progress Progress) (*Result, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 4
	}

	total := len(cfg.TokenFrequencies) * len(cfg.TokenAmounts)
	combos := make([]ComboResult, total)
	ran := make([]bool, total)

	sem := semaphore.NewWeighted(maxConc)
	g, gctx := errgroup.WithContext(ctx)
	var completed int64

	idx := 0
	for _, freq := range cfg.TokenFrequencies {
		for _, amount := range cfg.TokenAmounts {
			i, freq, amount := idx, freq, amount
			idx++
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil // context cancelled before this combo started
				}
				defer sem.Release(1)

				combo, err := runCombo(cfg.Base, amount, freq, cfg.BaseSeed, cfg.NumSeeds)
				if err != nil {
					return err
				}
				combos[i] = combo
				ran[i] = true
				n := atomic.AddInt64(&completed, 1)
				if progress != nil {
					progress(int(n), total)
				}
				return nil
			})
		}
	}

	runErr := g.Wait()
	if runErr != nil && ctx.Err() == nil {
		return nil, runErr
	}

	done := make([]ComboResult, 0, total)
	for i, r := range ran {
		if r {
			done = append(done, combos[i])
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].AvgMetrics.StabilityScore < done[j].AvgMetrics.StabilityScore
	})

	result := &Result{Combos: done}
	if len(done) > 0 {
		best := done[0]
		result.Best = &best
		if best.BaseSeedResult != nil {
			result.BestDaily = best.BaseSeedResult.DailyMap()
		}
	}
	result.Heatmap = buildHeatmap(done, cfg.TokenFrequencies, cfg.TokenAmounts)
	return result, nil
}

func runCombo(base simulator.Config, amount decimal.Decimal, freq int, baseSeed int64, numSeeds int) (ComboResult, error) {
	cfg := base
	cfg.TokenAmount = amount
	cfg.TokenFrequency = freq

	var sum simulator.Metrics
	var baseSeedResult *simulator.Result
	for k := 0; k < numSeeds; k++ {
		seed := baseSeed + int64(k)
		runCfg := cfg
		runCfg.Seed = seed
		res, err := simulator.Run(runCfg)
		if err != nil {
			return ComboResult{}, err
		}
		sum = addMetrics(sum, res.Metrics)
		if seed == baseSeed {
			baseSeedResult = res
		}
	}
	avg := divMetrics(sum, float64(numSeeds))
	return ComboResult{TokenAmount: amount, TokenFrequency: freq, AvgMetrics: avg, BaseSeedResult: baseSeedResult}, nil
}

func addMetrics(a, b simulator.Metrics) simulator.Metrics {
	return simulator.Metrics{
		AccessRate:          a.AccessRate + b.AccessRate,
		PreferenceMatchRate: a.PreferenceMatchRate + b.PreferenceMatchRate,
		AvgConsumerSurplus:  a.AvgConsumerSurplus + b.AvgConsumerSurplus,
		UtilizationRate:     a.UtilizationRate + b.UtilizationRate,
		PriceVolatility:     a.PriceVolatility + b.PriceVolatility,
		GiniCoefficient:     a.GiniCoefficient + b.GiniCoefficient,
		SupplyDemandRatio:   a.SupplyDemandRatio + b.SupplyDemandRatio,
		StabilityScore:      a.StabilityScore + b.StabilityScore,
		AvgSatisfaction:     a.AvgSatisfaction + b.AvgSatisfaction,
	}
}

func divMetrics(m simulator.Metrics, n float64) simulator.Metrics {
	if n == 0 {
		return m
	}
	return simulator.Metrics{
		AccessRate:          m.AccessRate / n,
		PreferenceMatchRate: m.PreferenceMatchRate / n,
		AvgConsumerSurplus:  m.AvgConsumerSurplus / n,
		UtilizationRate:     m.UtilizationRate / n,
		PriceVolatility:     m.PriceVolatility / n,
		GiniCoefficient:     m.GiniCoefficient / n,
		SupplyDemandRatio:   m.SupplyDemandRatio / n,
		StabilityScore:      m.StabilityScore / n,
		AvgSatisfaction:     m.AvgSatisfaction / n,
	}
}

func buildHeatmap(done []ComboResult, freqs []int, amounts []decimal.Decimal) [][]float64 {
	cell := make(map[string]float64, len(done))
	for _, c := range done {
		cell[comboKey(c.TokenFrequency, c.TokenAmount)] = c.AvgMetrics.StabilityScore
	}
	grid := make([][]float64, len(freqs))
	for fi, f := range freqs {
		row := make([]float64, len(amounts))
		for ai, a := range amounts {
			if v, ok := cell[comboKey(f, a)]; ok {
				row[ai] = v
			} else {
				row[ai] = math.NaN()
			}
		}
		grid[fi] = row
	}
	return grid
}

func comboKey(freq int, amount decimal.Decimal) string {
	return fmt.Sprintf("%d|%s", freq, amount.String())
}
