// Command simulate runs the off-line, in-memory market simulator and
// grid-search driver standalone, without opening a store or starting the
// live market process (spec §4.5/§4.6 treat simulation as a first-class
// operation distinct from the production auction loop).
//
// Two modes, selected by flags:
//
//	simulate                                   — single deterministic run at -seed, reports its metrics
//	simulate -grid                             — sweeps -amounts x -freqs x -seeds, reports the ranked best combo
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"roomauction/internal/config"
	"roomauction/internal/gridsearch"
	"roomauction/internal/simulator"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to config YAML (simulation defaults only)")
	grid := flag.Bool("grid", false, "run a grid search instead of a single simulation")
	seed := flag.Int64("seed", 42, "RNG seed for a single run (-grid ignores this; use -base-seed)")
	baseSeed := flag.Int64("base-seed", 0, "base seed for -grid; each combo runs seeds base..base+num_seeds-1")
	numSeeds := flag.Int("seeds", 5, "-grid: number of seeds averaged per combo")
	amounts := flag.String("amounts", "", "-grid: comma-separated token amounts, e.g. 50,100,200")
	freqs := flag.String("freqs", "", "-grid: comma-separated token frequencies in days, e.g. 3,7,14")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}

	base := simConfigFromSim(cfg.Sim)

	if !*grid {
		base.Seed = *seed
		runSingle(base, logger)
		return
	}

	amountVals, err := parseDecimals(firstNonEmpty(*amounts, joinFloats(cfg.Sim.TokenAmounts)))
	if err != nil {
		logger.Error("invalid -amounts", "error", err)
		os.Exit(1)
	}
	freqVals, err := parseInts(firstNonEmpty(*freqs, joinInts(cfg.Sim.TokenFrequencies)))
	if err != nil {
		logger.Error("invalid -freqs", "error", err)
		os.Exit(1)
	}

	gcfg := gridsearch.Config{
		Base:             base,
		TokenAmounts:     amountVals,
		TokenFrequencies: freqVals,
		NumSeeds:         orInt(*numSeeds, cfg.Sim.NumSeeds),
		BaseSeed:         *baseSeed,
	}
	runGrid(gcfg, logger)
}

func runSingle(cfg simulator.Config, logger *slog.Logger) {
	start := time.Now()
	result, err := simulator.Run(cfg)
	if err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	m := result.Metrics
	fmt.Printf("seed %d over %d days (ran in %s):\n", cfg.Seed, cfg.MaxDays, elapsed.Round(time.Millisecond))
	fmt.Printf("  access_rate            %.4f\n", m.AccessRate)
	fmt.Printf("  preference_match_rate  %.4f\n", m.PreferenceMatchRate)
	fmt.Printf("  avg_consumer_surplus   %.4f\n", m.AvgConsumerSurplus)
	fmt.Printf("  utilization_rate       %.4f\n", m.UtilizationRate)
	fmt.Printf("  price_volatility       %.4f\n", m.PriceVolatility)
	fmt.Printf("  gini_coefficient       %.4f\n", m.GiniCoefficient)
	fmt.Printf("  supply_demand_ratio    %.4f\n", m.SupplyDemandRatio)
	fmt.Printf("  stability_score        %.4f  (lower is better)\n", m.StabilityScore)
	fmt.Printf("  avg_satisfaction       %.4f\n", m.AvgSatisfaction)
	fmt.Printf("  agents booked at least once: %s / %s\n",
		humanize.Comma(int64(countBooked(result.BookingsByAgent))),
		humanize.Comma(int64(len(result.BookingsByAgent))))
}

func runGrid(cfg gridsearch.Config, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	total := len(cfg.TokenAmounts) * len(cfg.TokenFrequencies)
	result, err := gridsearch.Run(ctx, cfg, func(completed, total int) {
		logger.Info("grid search progress", "completed", completed, "total", total)
	})
	if err != nil {
		logger.Error("grid search failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("ranked %s combos (amounts x frequencies x %d seeds):\n", humanize.Comma(int64(total)), cfg.NumSeeds)
	for i, c := range result.Combos {
		marker := "  "
		if result.Best != nil && c.TokenAmount.Equal(result.Best.TokenAmount) && c.TokenFrequency == result.Best.TokenFrequency {
			marker = "* "
		}
		fmt.Printf("%s%2d. amount=%-8s freq=%-3dd  stability=%.4f  satisfaction=%.4f\n",
			marker, i+1, c.TokenAmount.String(), c.TokenFrequency, c.AvgMetrics.StabilityScore, c.AvgMetrics.AvgSatisfaction)
	}
	if result.Best != nil {
		fmt.Printf("\nbest: amount=%s frequency=%dd stability_score=%.4f\n",
			result.Best.TokenAmount.String(), result.Best.TokenFrequency, result.Best.AvgMetrics.StabilityScore)
	}
}

func simConfigFromSim(s config.SimConfig) simulator.Config {
	return simulator.Config{
		NumAgents:          s.NumAgents,
		NumRooms:           s.NumRooms,
		SlotsPerRoomPerDay: s.SlotsPerRoomDay,
		MaxDays:            s.MaxDays,
		TokenAmount:        decimal.NewFromFloat(firstPositive(s.TokenAmounts, 100)),
		TokenFrequency:     firstPositiveInt(s.TokenFrequencies, 7),
		Dutch: simulator.DutchParams{
			StartPrice: decimal.NewFromInt(80),
			MinPrice:   decimal.NewFromInt(5),
			PriceStep:  decimal.NewFromInt(3),
		},
		AgentProfiles: []simulator.ProfileConfig{
			{Name: "Heavy", Share: 0.2, UrgencyMin: 0.6, UrgencyMax: 1.0, BudgetSensitivityMin: 0.0, BudgetSensitivityMax: 0.3, BaseValueMin: 60, BaseValueMax: 100},
			{Name: "Moderate", Share: 0.5, UrgencyMin: 0.3, UrgencyMax: 0.7, BudgetSensitivityMin: 0.3, BudgetSensitivityMax: 0.6, BaseValueMin: 30, BaseValueMax: 60},
			{Name: "Light", Share: 0.3, UrgencyMin: 0.0, UrgencyMax: 0.4, BudgetSensitivityMin: 0.5, BudgetSensitivityMax: 0.9, BaseValueMin: 10, BaseValueMax: 30},
		},
		LocationWeights: map[string]float64{"default": 1.0},
		TimeWeights:     map[int]float64{0: 1.0, 1: 1.0, 2: 1.0},
		Seed:            s.Seed,
	}
}

func countBooked(byAgent map[string]int) int {
	n := 0
	for _, c := range byAgent {
		if c > 0 {
			n++
		}
	}
	return n
}

func parseDecimals(csv string) ([]decimal.Decimal, error) {
	parts := strings.Split(csv, ",")
	out := make([]decimal.Decimal, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", p, err)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no amounts given")
	}
	return out, nil
}

func parseInts(csv string) ([]int, error) {
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse frequency %q: %w", p, err)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no frequencies given")
	}
	return out, nil
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals []float64, fallback float64) float64 {
	if len(vals) > 0 && vals[0] > 0 {
		return vals[0]
	}
	return fallback
}

func firstPositiveInt(vals []int, fallback int) int {
	if len(vals) > 0 && vals[0] > 0 {
		return vals[0]
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
